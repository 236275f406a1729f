package bdd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chirino/conversation-cache/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	"github.com/klauspost/compress/zip"
)

func init() {
	cucumber.Register(func(ctx *godog.ScenarioContext, s *cucumber.Scenario) {
		sn := &snapshotSteps{s: s}
		ctx.Step(`^a snapshot file \${([^}]*)} with lines:$`, sn.aSnapshotFileWithLines)
		ctx.Step(`^a zipped snapshot \${([^}]*)} with entry "([^"]*)" and lines:$`, sn.aZippedSnapshotWithLines)
		ctx.Step(`^a missing snapshot \${([^}]*)}$`, sn.aMissingSnapshot)
	})
}

type snapshotSteps struct {
	s *cucumber.Scenario
}

func (sn *snapshotSteps) dir() (string, error) {
	dir, ok := sn.s.Suite.Fixtures["snapshotDir"].(string)
	if !ok || dir == "" {
		return "", fmt.Errorf("suite has no snapshotDir")
	}
	return dir, nil
}

// nextPath returns a fresh file path and stores it as ${name}.
func (sn *snapshotSteps) nextPath(name, ext string) (string, error) {
	dir, err := sn.dir()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, name+"-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	sn.s.Vars[name] = path
	return path, nil
}

func (sn *snapshotSteps) lines(doc *godog.DocString) (string, error) {
	expanded, err := sn.s.Expand(doc.Content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(expanded) + "\n", nil
}

func (sn *snapshotSteps) aSnapshotFileWithLines(name string, doc *godog.DocString) error {
	content, err := sn.lines(doc)
	if err != nil {
		return err
	}
	path, err := sn.nextPath(name, ".jsonl")
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (sn *snapshotSteps) aZippedSnapshotWithLines(name, entry string, doc *godog.DocString) error {
	content, err := sn.lines(doc)
	if err != nil {
		return err
	}
	path, err := sn.nextPath(name, ".zip")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(entry)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return err
	}
	return zw.Close()
}

func (sn *snapshotSteps) aMissingSnapshot(name string) error {
	dir, err := sn.dir()
	if err != nil {
		return err
	}
	sn.s.Vars[name] = filepath.Join(dir, "does-not-exist.zip")
	return nil
}
