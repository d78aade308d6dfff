package application

import (
	"context"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// StartResetSweeper schedules SweepExpiredResetTokens. Stop the returned
// cron on shutdown.
func StartResetSweeper(svc *Service, schedule string, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()
	err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := svc.SweepExpiredResetTokens(ctx)
		if err != nil {
			logger.WithError(err).Error("reset token sweep failed")
			return
		}
		if n > 0 {
			logger.WithField("cleared", n).Info("expired reset tokens cleared")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
