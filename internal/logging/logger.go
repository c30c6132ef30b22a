package logging

import "go.uber.org/zap"

// New builds the process logger: JSON in production, console in dev.
func New(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
