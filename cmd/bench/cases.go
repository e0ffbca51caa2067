// README: Smoke test cases: environment, health, API round trips and a perf check.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration disabled"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if _, err := r.db.Exec(ctx, string(sql)); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "HTTP: health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, _, err := r.get(ctx, base+"/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "HTTP: event estimates",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.EventID == "" {
					return Result{Status: "SKIP", Note: "no -event id"}
				}
				start := time.Now()
				status, body, err := r.get(ctx, base+"/api/events/"+r.cfg.EventID+"/estimates")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				var payload struct {
					Drivers map[string]json.RawMessage `json:"drivers"`
				}
				if err := json.Unmarshal(body, &payload); err != nil {
					return Result{Status: "FAIL", Note: "malformed body"}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "HTTP: campus estimate",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.EventID == "" {
					return Result{Status: "SKIP", Note: "no -event id"}
				}
				start := time.Now()
				url := fmt.Sprintf("%s/api/events/%s/estimate-campus?lat=34.682813&lng=-82.837402&label=CSP", base, r.cfg.EventID)
				status, _, err := r.get(ctx, url)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "Redis: pubsub round trip",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				topic := fmt.Sprintf("bench:%d", time.Now().UnixNano())
				sub := r.redis.Subscribe(ctx, topic)
				defer sub.Close()
				if _, err := sub.Receive(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				start := time.Now()
				if err := r.redis.Publish(ctx, topic, "ping").Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				select {
				case <-sub.Channel():
					return Result{Status: "PASS", Latency: time.Since(start)}
				case <-time.After(3 * time.Second):
					return Result{Status: "FAIL", Note: "no message within 3s"}
				}
			},
		},
		{
			Name: "Perf: health under load",
			Run: func(ctx context.Context, r *Runner) Result {
				ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
				defer cancel()
				var total, failures int64
				var wg sync.WaitGroup
				for i := 0; i < r.cfg.Concurrency; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for ctx.Err() == nil {
							status, _, err := r.get(ctx, base+"/health")
							if ctx.Err() != nil {
								return
							}
							atomic.AddInt64(&total, 1)
							if err != nil || status != http.StatusOK {
								atomic.AddInt64(&failures, 1)
							}
						}
					}()
				}
				wg.Wait()
				if total == 0 {
					return Result{Status: "FAIL", Note: "no requests completed"}
				}
				note := fmt.Sprintf("%d req, %d failed, %.0f req/s", total, failures, float64(total)/r.cfg.Duration.Seconds())
				if failures > 0 {
					return Result{Status: "FAIL", Note: note}
				}
				return Result{Status: "PASS", Note: note}
			},
		},
	}
}

func (r *Runner) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
