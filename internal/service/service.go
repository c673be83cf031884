package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventrec/recommender/internal/cache"
	"eventrec/recommender/internal/client"
	"eventrec/recommender/internal/domain"
	"eventrec/recommender/internal/domain/task"
	"eventrec/recommender/internal/metrics"
	"eventrec/recommender/internal/queue"
	"eventrec/recommender/internal/repository"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Service searches events for the recommendation engine and keeps the item
// catalog up to date with everything it has seen.
type Service struct {
	repository  repository.Repository
	client      client.TicketMasterClient
	cache       cache.SearchCache // nil without Redis
	queue       queue.Queue       // nil without Redis, items are then saved inline
	groupName   string
	minIdleTime time.Duration

	// deliveries after which an auto-claimed message is dead-lettered
	maxDeliveries int64
}

func NewService(
	repository repository.Repository,
	client client.TicketMasterClient,
	cache cache.SearchCache,
	queue queue.Queue,
	groupName string,
	minIdleTime int,
	maxDeliveries int,
) *Service {
	return &Service{
		repository:  repository,
		client:      client,
		cache:       cache,
		queue:       queue,
		groupName:   groupName,
		minIdleTime: time.Duration(minIdleTime) * time.Second,

		maxDeliveries: int64(maxDeliveries),
	}
}

// SearchItems returns events of category around (lat, lon) with distances
// in miles from that point. Every result is recorded in the catalog so its
// categories are known when a user marks it as favorite.
func (s *Service) SearchItems(ctx context.Context, lat, lon float64, category string) ([]domain.Item, error) {
	if s.cache != nil {
		items, err := s.cache.Get(ctx, lat, lon, category)
		switch {
		case err != nil:
			metrics.SearchCacheTotal.WithLabelValues("error").Inc()
			log.Warnf("⚠️ Search cache unavailable for %q: %v", category, err)
		case items != nil:
			metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			return relocate(items, lat, lon), nil
		default:
			metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	items, err := s.client.Search(ctx, lat, lon, category)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", category, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, lat, lon, category, items); err != nil {
			log.Warnf("⚠️ Failed to cache search for %q: %v", category, err)
		}
	}

	s.saveItems(ctx, category, items)
	return items, nil
}

// relocate measures cached items from the caller's exact point. Items
// without a venue location keep the distance they were cached with.
func relocate(items []domain.Item, lat, lon float64) []domain.Item {
	for i := range items {
		if items[i].HasLocation() {
			items[i].Distance = domain.Distance(lat, lon, items[i].Latitude, items[i].Longitude)
		}
	}
	return items
}

// saveItems never fails the search; a lost catalog write only means fewer
// categories for that item later.
func (s *Service) saveItems(ctx context.Context, keyword string, items []domain.Item) {
	if len(items) == 0 {
		return
	}

	if s.queue != nil {
		_, err := s.queue.AddTask(ctx, &task.SaveItemsTask{Keyword: keyword, Items: items})
		if err == nil {
			return
		}
		log.Warnf("⚠️ Failed to enqueue %d items for %q, saving inline: %v", len(items), keyword, err)
	}

	if err := s.repository.SaveItems(ctx, items); err != nil {
		log.Errorf("❌ Failed to save %d items for %q: %v", len(items), keyword, err)
	}
}

// RunWorkers consumes catalog tasks until ctx is done. Without a queue
// there is nothing to consume and it returns immediately.
func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	if s.queue == nil {
		log.Info("No task queue configured, catalog workers disabled")
		return nil
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	s.runWorkersForStream(ctx, &wg, numWorkers, queue.StreamName(task.SaveItemsTaskType), "catalog")
	wg.Wait()
	return nil
}

func (s *Service) runWorkersForStream(ctx context.Context, wg *sync.WaitGroup, numWorkers int, streamName, workerType string) {
	// Auto-claimer for messages whose consumer died or failed to save
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.minIdleTime)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				consumer := fmt.Sprintf("autoclaimer-%s", workerType)
				claimedMessages, err := s.queue.AutoClaim(ctx, s.groupName, consumer, streamName, s.minIdleTime)
				if err != nil {
					log.Errorf("❌ Failed to auto-claim messages for %s: %v", streamName, err)
					continue
				}
				if len(claimedMessages) > 0 {
					log.Infof("🔄 Auto-claimed %d messages from %s stream", len(claimedMessages), workerType)
					for _, msg := range claimedMessages {
						if err := s.processClaimed(ctx, streamName, &msg); err != nil {
							log.Errorf("❌ Failed to process auto-claimed message %s: %v", msg.ID, err)
						}
					}
				}
			}
		}
	}()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			consumer := fmt.Sprintf("%s-worker-%d", workerType, workerID)
			log.Infof("🚀 Starting %s worker %d as consumer %s", workerType, workerID, consumer)
			for {
				select {
				case <-ctx.Done():
					log.Infof("🛑 %s worker %d stopping", workerType, workerID)
					return
				default:
					msg, err := s.queue.GetTask(ctx, s.groupName, consumer, streamName)
					if err != nil {
						if ctx.Err() == nil {
							log.Errorf("❌ Failed to get task from %s: %v", streamName, err)
						}
						continue
					}

					if msg != nil {
						if err := s.processMessage(ctx, msg); err != nil {
							log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
						}
					}
				}
			}
		}(i + 1)
	}
}

// processClaimed retries an auto-claimed message unless it has already
// been delivered more than maxDeliveries times.
func (s *Service) processClaimed(ctx context.Context, streamName string, msg *redis.XMessage) error {
	if s.maxDeliveries > 0 {
		deliveries, err := s.queue.DeliveryCount(ctx, streamName, s.groupName, msg.ID)
		if err != nil {
			log.Warnf("⚠️ Failed to read delivery count of %s: %v", msg.ID, err)
		} else if deliveries > s.maxDeliveries {
			metrics.CatalogTasksTotal.WithLabelValues("dead_lettered").Inc()
			reason := fmt.Sprintf("delivered %d times", deliveries)
			return s.queue.DeadLetter(ctx, streamName, s.groupName, *msg, reason)
		}
	}
	return s.processMessage(ctx, msg)
}

// processMessage acks a message only once its items are saved; a failed
// save stays pending and is picked up again by the auto-claimer.
func (s *Service) processMessage(ctx context.Context, msg *redis.XMessage) error {
	taskType, ok := msg.Values["task_type"].(string)
	if !ok {
		return fmt.Errorf("invalid task type in message %s", msg.ID)
	}

	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	switch taskType {
	case task.SaveItemsTaskType:
		saveTask, err := task.UnmarshalTask[*task.SaveItemsTask]([]byte(taskData))
		if err != nil {
			metrics.CatalogTasksTotal.WithLabelValues("invalid").Inc()
			return fmt.Errorf("failed to unmarshal save items task: %w", err)
		}

		if err := s.repository.SaveItems(ctx, saveTask.Items); err != nil {
			metrics.CatalogTasksTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to save items for %q: %w", saveTask.Keyword, err)
		}
		metrics.CatalogTasksTotal.WithLabelValues("saved").Inc()
		log.Debugf("Saved %d items for %q", len(saveTask.Items), saveTask.Keyword)

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	if err := s.queue.AckTask(ctx, queue.StreamName(taskType), s.groupName, msg.ID); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}

	return nil
}
