package support

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/cucumber/godog"
)

// RegisterMeasurementSteps registers steps around measurement records.
func (testCtx *TestContext) RegisterMeasurementSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a measurement record "([^"]*)" with a (\d+) pixel distance$`, testCtx.aRecordWithDistance)
	sc.Step(`^the record "([^"]*)" should have (\d+) distances?$`, testCtx.theRecordShouldHaveDistances)
	sc.Step(`^the record "([^"]*)" should use units "([^"]*)"$`, testCtx.theRecordShouldUseUnits)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (testCtx *TestContext) aRecordWithDistance(name string, length int) error {
	c := measurement.NewCollection()
	c.AddDistance(geometry.Pt(10, 10), geometry.Pt(10+float64(length), 10))
	return c.SaveFile(testCtx.Path(name))
}

func (testCtx *TestContext) loadRecord(name string) (measurement.CollectionRecord, error) {
	c, err := measurement.LoadFile(testCtx.Path(testCtx.substituteCommandVariables(name)))
	if err != nil {
		return measurement.CollectionRecord{}, fmt.Errorf("failed to load record %s: %w", name, err)
	}
	return c.ToRecord(), nil
}

func (testCtx *TestContext) theRecordShouldHaveDistances(name string, n int) error {
	rec, err := testCtx.loadRecord(name)
	if err != nil {
		return err
	}
	if got := len(rec.DistanceMeasurements); got != n {
		return fmt.Errorf("record %s has %d distances, expected %d", name, got, n)
	}
	return nil
}

func (testCtx *TestContext) theRecordShouldUseUnits(name, units string) error {
	c, err := measurement.LoadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	if got := c.GlobalScale().Units; got != units {
		return fmt.Errorf("record %s uses units %q, expected %q", name, got, units)
	}
	return nil
}
