package main

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// refresher is the part of the ledger the refresh job drives.
type refresher interface {
	RefreshInstallments() (int, error)
}

func runRefresh(r refresher, logger *logrus.Logger) {
	logger.Info("Running installment refresh...")
	updated, err := r.RefreshInstallments()
	if err != nil {
		logger.WithError(err).Error("Installment refresh failed")
		return
	}
	logger.WithField("updated", updated).Info("Installment refresh complete")
}

// startRefreshJob schedules runRefresh on spec. Overlapping runs are skipped.
func startRefreshJob(spec string, r refresher, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
	)
	if _, err := c.AddFunc(spec, func() { runRefresh(r, logger) }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
