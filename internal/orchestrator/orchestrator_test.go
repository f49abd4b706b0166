package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealwatch/scout/internal/config"
	"github.com/dealwatch/scout/internal/models"
)

func TestCronMatchesExactMinute(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	ok, err := cronMatches("0 9,19 * * *", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cronMatches("0 9,19 * * *", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowPublishSkipsDuringQuietHours(t *testing.T) {
	cfg := &config.Config{BudgetMaxPages: 100, BudgetMaxTasks: 100}
	o := &Orchestrator{cfg: cfg, maxPages: 100, maxTasks: 100}

	hour := time.Now().UTC().Hour()
	cfg.HasQuietHours = true
	cfg.QuietHoursFrom = hour
	cfg.QuietHoursTo = (hour + 1) % 24

	allowed := o.allowPublish(models.TaskPayload{Site: "ozon"})
	assert.False(t, allowed)
}

func TestAllowPublishEnforcesTaskBudget(t *testing.T) {
	cfg := &config.Config{}
	o := &Orchestrator{cfg: cfg, maxPages: 100, maxTasks: 1}

	assert.True(t, o.allowPublish(models.TaskPayload{Site: "ozon"}))
	assert.False(t, o.allowPublish(models.TaskPayload{Site: "ozon"}))
}

func TestAllowPublishEnforcesPageBudget(t *testing.T) {
	cfg := &config.Config{}
	o := &Orchestrator{cfg: cfg, maxPages: 1, maxTasks: 100}

	assert.True(t, o.allowPublish(models.TaskPayload{Site: "ozon"}))
	assert.False(t, o.allowPublish(models.TaskPayload{Site: "ozon"}))
}
