package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shintothemars/tft-bbri/internal/alerting"
	"github.com/shintothemars/tft-bbri/internal/forecast"
)

type stubForecaster struct {
	res     *forecast.Result
	err     error
	targets []time.Time
}

func (f *stubForecaster) Predict(_ context.Context, target time.Time) (*forecast.Result, error) {
	f.targets = append(f.targets, target)
	return f.res, f.err
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return n.err
}

type stubLocker struct {
	acquired bool
	released int
}

func (l *stubLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type countingObserver struct{ ok, failed int }

func (o *countingObserver) ObserveNotification(err error) {
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func result(trend float64, degraded ...forecast.Reason) *forecast.Result {
	res := &forecast.Result{
		ID:           "id-1",
		Success:      true,
		Symbol:       "BBRI.JK",
		TargetDate:   "2025-06-17",
		LastDataDate: "2025-06-09",
		Analysis: forecast.Analysis{
			LastPrice:       5000,
			PredictedPrice:  5000 * (1 + trend/100),
			TrendPercentage: trend,
			TrendDirection:  forecast.DirectionDown,
			ConfidenceRange: forecast.ConfidenceRange{Lower: 4800, Upper: 5300},
		},
		Status:   forecast.StatusNominal,
		Degraded: degraded,
	}
	if trend > 0 {
		res.Analysis.TrendDirection = forecast.DirectionUp
	}
	if len(degraded) > 0 {
		res.Status = forecast.StatusDegraded
	}
	return res
}

func TestExecuteNotifiesAboveThreshold(t *testing.T) {
	fc := &stubForecaster{res: result(4.2)}
	notifier := &recordingNotifier{}
	obs := &countingObserver{}
	jakarta := time.FixedZone("WIB", 7*3600)
	svc := New(Options{HorizonDays: 7, ThresholdPct: 3, AlertsOn: true, Location: jakarta}, nil, fc, notifier, nil, obs, zerolog.Nop())

	// 20:00 UTC on the 9th is already the 10th in Jakarta.
	sent, err := svc.Execute(context.Background(), time.Date(2025, 6, 9, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !sent || len(notifier.notes) != 1 || obs.ok != 1 {
		t.Fatalf("expected one notification, sent=%v notes=%d", sent, len(notifier.notes))
	}
	want := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)
	if !fc.targets[0].Equal(want) {
		t.Fatalf("expected target %s, got %s", want, fc.targets[0])
	}
	note := notifier.notes[0]
	if note.Direction != "up" || note.TrendPct.StringFixed(1) != "4.2" {
		t.Fatalf("unexpected note %+v", note)
	}
	if note.TargetDate.Format("2006-01-02") != "2025-06-17" {
		t.Fatalf("unexpected target %s", note.TargetDate)
	}
}

func TestExecuteSkipsQuietForecast(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := New(Options{HorizonDays: 7, ThresholdPct: 3, AlertsOn: true}, nil, &stubForecaster{res: result(-1.5)}, notifier, nil, nil, zerolog.Nop())

	sent, err := svc.Execute(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if sent || len(notifier.notes) != 0 {
		t.Fatal("quiet forecast should not notify")
	}
}

func TestEvaluateDegraded(t *testing.T) {
	res := result(0.5, forecast.ReasonSyntheticData)

	quiet := New(Options{ThresholdPct: 3}, nil, nil, nil, nil, nil, zerolog.Nop())
	if _, ok := quiet.Evaluate(res); ok {
		t.Fatal("degraded forecast below threshold should not qualify unless configured")
	}

	loud := New(Options{ThresholdPct: 3, NotifyDegraded: true}, nil, nil, nil, nil, nil, zerolog.Nop())
	note, ok := loud.Evaluate(res)
	if !ok {
		t.Fatal("degraded forecast should qualify")
	}
	if len(note.Degraded) != 1 || note.Degraded[0] != "synthetic-data" {
		t.Fatalf("unexpected tags %v", note.Degraded)
	}
}

func TestExecuteNegativeTrendCrossesThreshold(t *testing.T) {
	svc := New(Options{ThresholdPct: 3}, nil, nil, nil, nil, nil, zerolog.Nop())
	if _, ok := svc.Evaluate(result(-3)); !ok {
		t.Fatal("a -3% trend meets a 3% threshold")
	}
}

func TestExecuteForecastError(t *testing.T) {
	notifier := &recordingNotifier{}
	boom := errors.New("boom")
	svc := New(Options{AlertsOn: true}, nil, &stubForecaster{err: boom}, notifier, nil, nil, zerolog.Nop())

	if _, err := svc.Execute(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("failed forecast must not notify")
	}
}

func TestNotifyFailureIsCounted(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	obs := &countingObserver{}
	svc := New(Options{ThresholdPct: 1, AlertsOn: true}, nil, &stubForecaster{res: result(5)}, notifier, nil, obs, zerolog.Nop())

	sent, err := svc.Execute(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("dispatch failure should not fail the tick: %v", err)
	}
	if sent || obs.failed != 1 {
		t.Fatalf("expected recorded failure, sent=%v failed=%d", sent, obs.failed)
	}
}

func TestProcessTickRespectsLock(t *testing.T) {
	fc := &stubForecaster{res: result(5)}
	locker := &stubLocker{acquired: false}
	svc := New(Options{LockKey: 7}, nil, fc, nil, locker, nil, zerolog.Nop())

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(fc.targets) != 0 {
		t.Fatal("tick should be skipped while the lock is held elsewhere")
	}

	locker.acquired = true
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(fc.targets) != 1 || locker.released != 1 {
		t.Fatalf("expected one run and one release, got %d runs %d releases", len(fc.targets), locker.released)
	}
}
