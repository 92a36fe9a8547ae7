package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shintothemars/tft-bbri/internal/alerting"
	"github.com/shintothemars/tft-bbri/internal/service"
)

// SimulateAlert 基于合成行情跑一次预测并推送告警。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = a.Config.Watch.HorizonDays
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("未配置任何告警通道，消息仅写入日志")
		notifier = alerting.NewLogNotifier(a.Logger)
	}

	p, err := a.newPipeline(a.newSynthetic())
	if err != nil {
		return err
	}

	svc := service.New(service.Options{
		HorizonDays:    horizon,
		ThresholdPct:   0,
		NotifyDegraded: true,
		AlertsOn:       true,
		Location:       a.Config.Watch.Location(),
	}, nil, p.forecast, notifier, nil, a.Metrics, a.Logger)

	sent, err := svc.Execute(ctx, time.Now())
	if err != nil {
		return err
	}
	if !sent {
		return fmt.Errorf("simulated notification was not delivered")
	}
	fmt.Fprintln(a.Out, "simulated notification sent")
	return nil
}
