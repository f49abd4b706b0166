// Package orchestrator schedules the digest (09:00/19:00) and hourly
// silent preset runs, fans (category, geoid) pairs out to per-site
// per-item tasks under a page/task budget and quiet-hours gate, and
// publishes them onto the work queue. Grounded in app/orchestrator.py's
// Orchestrator (the canonical scheduler; superseded by neither
// orchestrator/manager.py nor orchestrator/scheduler.py).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/dealwatch/scout/internal/config"
	"github.com/dealwatch/scout/internal/metrics"
	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/presets"
	"github.com/dealwatch/scout/internal/queue"
	"github.com/dealwatch/scout/internal/store"
	"github.com/dealwatch/scout/pkg/logger"
)

// Orchestrator owns the cron schedule and the budget-gated publish loop.
type Orchestrator struct {
	queue    *queue.Queue
	users    *store.UserStore
	presets  *presets.Presets
	cfg      *config.Config
	log      *logger.Logger
	cron     *cronlib.Cron

	maxPages int
	maxTasks int

	pagesSent int
	tasksSent int
}

func New(q *queue.Queue, users *store.UserStore, p *presets.Presets, cfg *config.Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		queue:    q,
		users:    users,
		presets:  p,
		cfg:      cfg,
		log:      log,
		cron:     cronlib.New(),
		maxPages: cfg.BudgetMaxPages,
		maxTasks: cfg.BudgetMaxTasks,
	}
}

// Start registers the digest and hourly-silent jobs and starts the
// scheduler's background goroutine.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.cron.AddFunc("0 9,19 * * *", func() {
		if err := o.RunAllPresetsAndNotify(ctx); err != nil && o.log != nil {
			o.log.Error("digest preset run failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule digest job: %w", err)
	}
	if _, err := o.cron.AddFunc("@every 1h", func() {
		if err := o.RunAllPresetsNoNotify(ctx); err != nil && o.log != nil {
			o.log.Error("silent preset run failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule silent job: %w", err)
	}
	o.cron.Start()
	return nil
}

func (o *Orchestrator) Stop() {
	<-o.cron.Stop().Done()
}

func (o *Orchestrator) RunAllPresetsNoNotify(ctx context.Context) error {
	return o.runPresets(ctx, false)
}

func (o *Orchestrator) RunAllPresetsAndNotify(ctx context.Context) error {
	return o.runPresets(ctx, true)
}

func (o *Orchestrator) inQuietHours() bool {
	return o.cfg.InQuietHours(time.Now().UTC().Hour())
}

// allowPublish mirrors _allow_publish's quiet-hours and budget gate.
func (o *Orchestrator) allowPublish(task models.TaskPayload) bool {
	if o.inQuietHours() {
		if o.log != nil {
			o.log.Info("quiet hours, task skipped", "site", task.Site, "url", task.URL)
		}
		metrics.TasksSkippedTotal.WithLabelValues("quiet_hours").Inc()
		return false
	}
	if o.maxPages > 0 && o.pagesSent >= o.maxPages {
		if o.log != nil {
			o.log.Warn("page budget exceeded, task skipped", "max_pages", o.maxPages)
		}
		metrics.BudgetExceededTotal.WithLabelValues("pages").Inc()
		metrics.TasksSkippedTotal.WithLabelValues("max_pages").Inc()
		return false
	}
	if o.maxTasks > 0 && o.tasksSent >= o.maxTasks {
		if o.log != nil {
			o.log.Warn("task budget exceeded, task skipped", "max_tasks", o.maxTasks)
		}
		metrics.BudgetExceededTotal.WithLabelValues("tasks").Inc()
		metrics.TasksSkippedTotal.WithLabelValues("max_tasks").Inc()
		return false
	}
	o.pagesSent++
	o.tasksSent++
	return true
}

type pair struct{ category, geoid string }

// runPresets is the Go translation of _run_presets: build the
// (category, geoid) admission set from active users' schedules and
// categories (falling back to every known category), always also
// covering the default geoid, then publish one task per matching
// site/item for each pair under the budget gate.
func (o *Orchestrator) runPresets(ctx context.Context, notify bool) error {
	o.pagesSent = 0
	o.tasksSent = 0

	now := time.Now().UTC()
	users, err := o.users.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	allCategories := o.presets.AllCategories()
	pairs := map[pair]bool{}

	for _, u := range users {
		if u.ScheduleCron != nil && *u.ScheduleCron != "" {
			matches, err := cronMatches(*u.ScheduleCron, now)
			if err != nil {
				if o.log != nil {
					o.log.Warn("invalid cron for geoid", "geoid", u.Geoid, "cron", *u.ScheduleCron, "err", err)
				}
				continue
			}
			if !matches {
				if o.log != nil {
					o.log.Info("skipping geoid due to schedule", "geoid", u.Geoid, "cron", *u.ScheduleCron)
				}
				continue
			}
		}
		categories := u.Categories
		if len(categories) == 0 {
			categories = allCategories
		}
		for _, cat := range categories {
			pairs[pair{category: cat, geoid: u.Geoid}] = true
		}
	}

	defaultGeoid := o.presets.GeoidDefault
	if defaultGeoid == "" {
		defaultGeoid = o.cfg.DefaultGeoid
	}
	for _, cat := range allCategories {
		pairs[pair{category: cat, geoid: defaultGeoid}] = true
	}

	for p := range pairs {
		for site, items := range o.presets.Sites {
			for _, item := range items {
				if item.Category() != p.category {
					continue
				}
				task := models.TaskPayload{
					Site:        site,
					URL:         item.URL,
					Geoid:       p.geoid,
					Category:    p.category,
					MinDiscount: o.cfg.MinDiscount,
					MinScore:    o.cfg.MinScore,
					Notify:      notify,
				}
				if !o.allowPublish(task) {
					continue
				}
				if err := o.queue.Publish(ctx, task, false); err != nil {
					if o.log != nil {
						o.log.Error("publish task failed", "site", site, "url", item.URL, "err", err)
					}
					continue
				}
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}

// cronMatches reports whether spec fires at now's minute: the first fire
// time after one second before now.Truncate(time.Minute) must land exactly
// on that minute - the same granularity as APScheduler's CronTrigger.match.
func cronMatches(spec string, now time.Time) (bool, error) {
	schedule, err := cronlib.ParseStandard(spec)
	if err != nil {
		return false, err
	}
	minute := now.Truncate(time.Minute)
	next := schedule.Next(minute.Add(-time.Second))
	return next.Equal(minute), nil
}
