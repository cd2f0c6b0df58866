package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/fleet"
)

// StartFleet authorizes the default bot and, when multiClient is set, every
// token in extraTokens, registering each as a fleet.Identity with its own
// SessionPool. Mirrors the teacher's bounded-concurrent-startup/retry shape
// (internal/bot/workers.go's StartWorkers) generalized to the ClientFleet
// model of spec.md §4.4.
func StartFleet(
	apiID int32, apiHash, defaultBotToken string, extraTokens []string, multiClient bool,
	maxStreamsPerDC int64, idleTimeout time.Duration, globalStreamLimit int64,
	log *zap.Logger,
) (*fleet.Fleet, error) {
	log = log.Named("bot")
	f := fleet.New(globalStreamLimit, log)

	defaultClient, err := startClient(log, int(apiID), apiHash, defaultBotToken, 0)
	if err != nil {
		return nil, fmt.Errorf("start default client: %w", err)
	}
	defaultIdentity := NewIdentity(0, defaultClient, int(apiID), apiHash, log)
	defaultIdentity.StartPool(maxStreamsPerDC, idleTimeout)
	f.Add(&fleet.Identity{Handle: defaultIdentity.Handle, HomeDC: defaultIdentity.HomeDCID(), Pool: defaultIdentity.Pool})
	log.Sugar().Infof("default client loaded: %s", defaultIdentity.Handle)

	if !multiClient || len(extraTokens) == 0 {
		return f, nil
	}

	const maxConcurrent = 3
	const maxRetries = 3
	const retryDelay = 5 * time.Second

	type result struct {
		index int
		id    *ClientIdentity
		err   error
	}

	startBatch := func(indices []int) []result {
		var wg sync.WaitGroup
		results := make([]result, len(indices))
		sem := make(chan struct{}, maxConcurrent)
		for j, idx := range indices {
			wg.Add(1)
			go func(j, idx int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				client, err := startClient(log, int(apiID), apiHash, extraTokens[idx], idx+1)
				if err != nil {
					results[j] = result{index: idx, err: err}
					return
				}
				id := NewIdentity(idx+1, client, int(apiID), apiHash, log)
				id.StartPool(maxStreamsPerDC, idleTimeout)
				results[j] = result{index: idx, id: id}
			}(j, idx)
		}
		wg.Wait()
		return results
	}

	indices := make([]int, len(extraTokens))
	for i := range indices {
		indices[i] = i
	}
	failed := indices

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Sugar().Infof("retrying %d failed worker clients (attempt %d/%d)", len(failed), attempt, maxRetries)
			time.Sleep(retryDelay)
		}
		results := startBatch(failed)
		var next []int
		for _, r := range results {
			if r.err != nil {
				log.Error("worker client failed to start", zap.Int("index", r.index), zap.Error(r.err))
				next = append(next, r.index)
				continue
			}
			f.Add(&fleet.Identity{Handle: r.id.Handle, HomeDC: r.id.HomeDCID(), Pool: r.id.Pool})
		}
		failed = next
		if len(failed) == 0 {
			break
		}
	}

	if len(failed) > 0 {
		log.Sugar().Warnf("%d worker clients failed to start after %d retries", len(failed), maxRetries)
	}
	log.Sugar().Infof("fleet ready with %d clients", f.Len())
	return f, nil
}

func startClient(log *zap.Logger, apiID int, apiHash, botToken string, index int) (*gotgproto.Client, error) {
	sessionType := sessionMaker.SqlSession(sqlite.Open(fmt.Sprintf("sessions/client-%d.session", index)))
	client, err := gotgproto.NewClient(
		apiID,
		apiHash,
		gotgproto.ClientTypeBot(botToken),
		&gotgproto.ClientOpts{
			Session:          sessionType,
			DisableCopyright: true,
			Middlewares:      GetFloodMiddleware(log.Named("client")),
		},
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}
