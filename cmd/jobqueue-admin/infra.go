package main

import (
	"context"
	"errors"
	"time"

	redisadapter "github.com/target/jobqueue/internal/adapters/redis"
	"github.com/target/jobqueue/internal/bootstrap"
	"github.com/target/jobqueue/internal/data"
)

const connectTimeout = 10 * time.Second

type infraOptions struct {
	WantDB    bool
	WantRedis bool
}

// infra holds the connections a command asked for.
type infra struct {
	*bootstrap.Infrastructure
	cmdCtx *commandContext
}

// connectInfra wires up infrastructure dependencies based on CLI options.
func connectInfra(cmdCtx *commandContext, opts infraOptions) (*infra, error) {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, connectTimeout)
	defer cancel()
	conns, err := bootstrap.ConnectInfrastructure(ctx, bootstrap.InfrastructureConfig{
		Config:    &cmdCtx.Config,
		WantDB:    opts.WantDB,
		WantRedis: opts.WantRedis,
		Logger:    cmdCtx.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &infra{Infrastructure: conns, cmdCtx: cmdCtx}, nil
}

// Jobs returns a job repository over the command's database connection.
func (i *infra) Jobs() *data.JobRepo {
	return data.NewJobRepo(i.DB, data.RepoConfig{Logger: i.cmdCtx.Logger})
}

// Users returns a user repository over the command's database connection.
func (i *infra) Users() *data.UserRepo {
	return data.NewUserRepo(i.DB, data.RepoConfig{Logger: i.cmdCtx.Logger})
}

// Queue returns the dispatch queue over the command's Redis connection.
func (i *infra) Queue(key string) (*redisadapter.JobQueue, error) {
	if i.Redis == nil {
		return nil, errors.New("redis not connected")
	}
	return redisadapter.NewJobQueue(redisadapter.JobQueueOptions{
		Client: i.Redis,
		Key:    key,
		Logger: i.cmdCtx.Logger,
	})
}

// Close closes every open connection and logs failures.
func (i *infra) Close() {
	if err := i.Infrastructure.Close(); err != nil {
		i.cmdCtx.Logger.Warn("closing connections failed", "error", err)
	}
}
