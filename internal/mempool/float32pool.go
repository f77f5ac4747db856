// Package mempool pools the float32 tensor buffers the detector fills per frame.
package mempool

import "sync"

// classStep is the bucket granularity of pooled buffers, in elements.
const classStep = 1024

var float32Pools sync.Map // size class (int) -> *sync.Pool

// sizeClass rounds n up to the next multiple of classStep.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := float32Pools.Load(cls); ok {
		return p.(*sync.Pool)
	}
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{
		New: func() any {
			buf := make([]float32, cls)
			return &buf
		},
	})
	return p.(*sync.Pool)
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed; callers
// overwrite every element. Return it with PutFloat32.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp := poolFor(cls).Get().(*[]float32)
	buf := *bp
	if cap(buf) < n {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer obtained from GetFloat32. Nil is ignored.
func PutFloat32(buf []float32) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:cap(buf)]
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// Foreign slice; pooling it under a larger class would break GetFloat32.
		return
	}
	poolFor(cls).Put(&buf)
}
