package support

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/server"
	"github.com/MeKo-Tech/platescan/internal/video"
	"github.com/cucumber/godog"
)

// HTTPTestServerWrapper wraps an in-process server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// theServerIsRunningWithoutModels starts the real pipeline against an empty
// models directory, so detection reports the model as unavailable.
func (testCtx *TestContext) theServerIsRunningWithoutModels() error {
	p, err := pipeline.NewBuilder().
		WithModelsDir(filepath.Join(testCtx.TempDir, "no-models")).
		WithTempDir(testCtx.WorkDir).
		WithVideoOpener(video.NewOpener()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	srv := server.NewServer(server.Config{CORSOrigin: "*", MaxUploadMB: 5}, p)
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(srv.Handler()),
		TestServer: srv,
	}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() error {
	if testCtx.HTTPTestServer == nil {
		return nil
	}
	testCtx.HTTPTestServer.Server.Close()
	err := testCtx.HTTPTestServer.TestServer.Close()
	testCtx.HTTPTestServer = nil
	return err
}

func (testCtx *TestContext) serverURL(path string) (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL + path, nil
}

// iUploadTo posts a work directory file as the multipart "file" field.
func (testCtx *TestContext) iUploadTo(name, path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.workPath(name))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := http.Post(url, mw.FormDataContentType(), &body) //nolint:noctx // test client
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

// iSendRequestTo performs a body-less request.
func (testCtx *TestContext) iSendRequestTo(method, path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, nil) //nolint:noctx // test client
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code string) error {
	want, err := strconv.Atoi(code)
	if err != nil {
		return err
	}
	if testCtx.LastHTTPStatusCode != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nActual response: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// noTempFilesShouldRemain fails if any job file is left in the work directory.
func (testCtx *TestContext) noTempFilesShouldRemain() error {
	matches, err := filepath.Glob(filepath.Join(testCtx.WorkDir, media.TempPattern))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return fmt.Errorf("temp files left behind: %v", matches)
	}
	return nil
}

// RegisterServerSteps registers the in-process server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detection server is running without models$`, testCtx.theServerIsRunningWithoutModels)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I send "([^"]*)" to "([^"]*)"$`, testCtx.iSendRequestTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^no temp files should remain$`, testCtx.noTempFilesShouldRemain)
}
