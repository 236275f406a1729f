package bdd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/chirino/conversation-cache/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.Register(func(ctx *godog.ScenarioContext, s *cucumber.Scenario) {
		m := &metricsSteps{s: s, recorded: map[string]float64{}}
		ctx.Step(`^I record the "([^"]*)" metric with outcome "([^"]*)"$`, m.iRecordTheMetric)
		ctx.Step(`^the "([^"]*)" metric with outcome "([^"]*)" should have increased by at least (\d+)$`, m.theMetricShouldHaveIncreasedBy)
	})
}

type metricsSteps struct {
	s        *cucumber.Scenario
	recorded map[string]float64
}

// scrape sums every sample of the named series carrying the outcome label.
func (m *metricsSteps) scrape(ctx context.Context, name, outcome string) (float64, error) {
	if err := m.s.Do(ctx, http.MethodGet, m.s.Suite.BaseURL+"/metrics", ""); err != nil {
		return 0, err
	}
	label := fmt.Sprintf(`outcome=%q`, outcome)
	var total float64
	sc := bufio.NewScanner(bytes.NewReader(m.s.Body()))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, name+"{") || !strings.Contains(line, label) {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse sample %q: %w", line, err)
		}
		total += v
	}
	return total, sc.Err()
}

func (m *metricsSteps) iRecordTheMetric(ctx context.Context, name, outcome string) error {
	v, err := m.scrape(ctx, name, outcome)
	if err != nil {
		return err
	}
	m.recorded[name+"/"+outcome] = v
	return nil
}

func (m *metricsSteps) theMetricShouldHaveIncreasedBy(ctx context.Context, name, outcome string, delta int) error {
	before, ok := m.recorded[name+"/"+outcome]
	if !ok {
		return fmt.Errorf("metric %s{outcome=%q} was not recorded first", name, outcome)
	}
	after, err := m.scrape(ctx, name, outcome)
	if err != nil {
		return err
	}
	if after-before < float64(delta) {
		return fmt.Errorf("metric %s{outcome=%q} increased by %g, want at least %d", name, outcome, after-before, delta)
	}
	return nil
}
