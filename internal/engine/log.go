package engine

import "github.com/sirupsen/logrus"

// log is the package-level structured logger, following SPEC_FULL.md's
// internal/*/log.go pattern: one *logrus.Entry per component, tagged so a
// multi-component run's output can be filtered by field rather than by
// grepping message text.
var log = logrus.WithField("component", "engine")
