package support

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// theTempDirectoryContains creates empty files named in the first table column.
func (testCtx *TestContext) theTempDirectoryContains(table *godog.Table) error {
	for _, row := range table.Rows {
		name := strings.TrimSpace(row.Cells[0].Value)
		if name == "" || name == "file" {
			continue
		}
		if err := testCtx.aFileWithContent(name, "x"); err != nil {
			return err
		}
	}
	return nil
}

// theTempDirectoryShouldContainOnly compares the work directory listing.
func (testCtx *TestContext) theTempDirectoryShouldContainOnly(list string) error {
	entries, err := os.ReadDir(testCtx.WorkDir)
	if err != nil {
		return err
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}

	var want []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			want = append(want, name)
		}
	}
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return fmt.Errorf("temp directory holds %v, want %v", got, want)
	}
	return nil
}

// RegisterSweepSteps registers temp directory steps.
func (testCtx *TestContext) RegisterSweepSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the temp directory contains:$`, testCtx.theTempDirectoryContains)
	sc.Step(`^the temp directory should contain only "([^"]*)"$`, testCtx.theTempDirectoryShouldContainOnly)
}
