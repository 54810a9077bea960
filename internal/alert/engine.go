package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// CountsGetter reports queue entries per status
type CountsGetter interface {
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error)
}

// Rule raises an alert when the count of entries in Status crosses Threshold
type Rule struct {
	Name      string
	Status    domain.QueueStatus
	Operator  string
	Threshold int64
	Severity  Severity
	Cooldown  time.Duration
}

// DefaultRules builds the backlog and failure rules. A zero threshold disables its rule.
func DefaultRules(pendingThreshold, failedThreshold int64, cooldown time.Duration) []Rule {
	var rules []Rule
	if pendingThreshold > 0 {
		rules = append(rules, Rule{
			Name:      "pending_backlog",
			Status:    domain.StatusPending,
			Operator:  "gt",
			Threshold: pendingThreshold,
			Severity:  SeverityWarning,
			Cooldown:  cooldown,
		})
	}
	if failedThreshold > 0 {
		rules = append(rules, Rule{
			Name:      "failed_entries",
			Status:    domain.StatusFailed,
			Operator:  "gte",
			Threshold: failedThreshold,
			Severity:  SeverityCritical,
			Cooldown:  cooldown,
		})
	}
	return rules
}

type Engine struct {
	counts        CountsGetter
	mu            sync.Mutex
	lastTriggered map[string]time.Time
}

func NewEngine(counts CountsGetter) *Engine {
	return &Engine{
		counts:        counts,
		lastTriggered: make(map[string]time.Time),
	}
}

// Evaluate returns one alert per rule that is met and out of cooldown
func (e *Engine) Evaluate(ctx context.Context, rules []Rule, now time.Time) ([]Alert, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	counts, err := e.counts.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var alerts []Alert
	for _, rule := range rules {
		value := counts[rule.Status]
		if !e.evaluateCondition(rule.Operator, value, rule.Threshold) {
			continue
		}
		if !e.shouldTrigger(rule, now) {
			continue
		}
		e.lastTriggered[rule.Name] = now

		a := New(rule.Severity,
			"Webhook queue threshold crossed",
			fmt.Sprintf("%d %s entries (%s %d)", value, rule.Status, rule.Operator, rule.Threshold),
		)
		a.CreatedAt = now
		a.Metadata = map[string]string{
			"rule":      rule.Name,
			"status":    string(rule.Status),
			"value":     strconv.FormatInt(value, 10),
			"threshold": strconv.FormatInt(rule.Threshold, 10),
		}
		alerts = append(alerts, a)
	}

	return alerts, nil
}

func (e *Engine) evaluateCondition(operator string, value, threshold int64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	case "eq":
		return value == threshold
	case "ne":
		return value != threshold
	default:
		return false
	}
}

func (e *Engine) shouldTrigger(rule Rule, now time.Time) bool {
	last, ok := e.lastTriggered[rule.Name]
	if !ok {
		return true
	}
	return now.After(last.Add(rule.Cooldown))
}
