// tasks.go — фоновые задачи вычисления метаданных ассетов.
//
// Задача заполняет одно поле метаданных (uuid4 — постоянный идентификатор,
// sha256 — контрольная сумма оригинала). Поле, у которого уже есть значение,
// не пересчитывается. Результаты по одному ассету отправляются в архив
// одним обновлением.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// Task — вид задачи метаданных.
type Task string

const (
	TaskUUID   Task = "uuid4"
	TaskSHA256 Task = "sha256"
)

// identifierPrefixes — первый символ идентификатора: всегда буква,
// чтобы идентификатор годился как имя в C-подобных синтаксисах.
const identifierPrefixes = "rjkmtvyz"

// identifierPattern — форма идентификатора, выдаваемого NewIdentifier.
var identifierPattern = regexp.MustCompile(`^[` + identifierPrefixes + `][a-z2-7]+$`)

// Параллелизм вычисления задач по ассетам.
const taskConcurrency = 4

// ParseTask разбирает имя задачи.
func ParseTask(s string) (Task, error) {
	switch t := Task(strings.ToLower(strings.TrimSpace(s))); t {
	case TaskUUID, TaskSHA256:
		return t, nil
	default:
		return "", fmt.Errorf("неизвестная задача %q (допустимые: uuid4, sha256)", s)
	}
}

// NewIdentifier генерирует постоянный идентификатор ассета:
// буква-префикс + base32 (нижний регистр, без паддинга) случайного UUID.
func NewIdentifier() string {
	id := uuid.New()
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:])
	prefix := identifierPrefixes[rand.IntN(len(identifierPrefixes))]
	return string(prefix) + strings.ToLower(encoded)
}

// ValidIdentifier сообщает, может ли строка быть идентификатором ассета.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// TaskService — вычисление и запись метаданных.
type TaskService struct {
	archive  ArchiveAPI
	content  *ContentService
	archives []string
	fields   map[Task]string
	logger   *slog.Logger
}

// NewTaskService создаёт сервис задач. fields — поле метаданных для каждой
// задачи; задача без поля не выполняется.
func NewTaskService(archive ArchiveAPI, content *ContentService, archives []string, fields map[Task]string, logger *slog.Logger) *TaskService {
	return &TaskService{
		archive:  archive,
		content:  content,
		archives: archives,
		fields:   fields,
		logger:   logger.With(slog.String("component", "task_service")),
	}
}

// Field возвращает поле метаданных задачи.
func (s *TaskService) Field(task Task) (string, bool) {
	field, ok := s.fields[task]
	return field, ok && field != ""
}

// PendingQuery — выражение поиска ассетов, у которых не заполнено
// хотя бы одно из полей задач.
func (s *TaskService) PendingQuery(tasks []Task) archiveclient.Query {
	var parts []archiveclient.Query
	for _, task := range tasks {
		if field, ok := s.Field(task); ok {
			parts = append(parts, archiveclient.Empty(field))
		}
	}
	return archiveclient.Or(parts...)
}

// AssignPending находит до limit ассетов без значений полей задач
// и выполняет для них задачи.
func (s *TaskService) AssignPending(ctx context.Context, archives []string, tasks []Task, limit int) (map[string]map[string]string, error) {
	query := s.PendingQuery(tasks)
	if query == "" {
		return nil, nil
	}
	if len(archives) == 0 {
		archives = s.archives
	}

	assets, err := s.archive.Search(ctx, archives, query, limit)
	if err != nil {
		return nil, upstreamError("поиск ассетов для задач", err)
	}
	s.logger.Info("Найдены ассеты для фоновых задач",
		slog.String("query", string(query)),
		slog.Int("count", len(assets)),
	)
	return s.Apply(ctx, assets, tasks)
}

// Apply выполняет задачи для ассетов и отправляет обновления.
// Возвращает отправленные значения: href ассета → поле → значение.
// Ошибка вычисления одной задачи логируется и не останавливает остальные;
// отмена ctx прерывает вычисление, и обновления не отправляются.
func (s *TaskService) Apply(ctx context.Context, assets []model.Asset, tasks []Task) (map[string]map[string]string, error) {
	var (
		mu       sync.Mutex
		combined = make(map[string]map[string]string)
	)

	var compute errgroup.Group
	compute.SetLimit(taskConcurrency)

	for i := range assets {
		asset := &assets[i]
		if asset.Href == "" {
			continue
		}
		compute.Go(func() error {
			for _, task := range tasks {
				if err := ctx.Err(); err != nil {
					return err
				}
				field, ok := s.Field(task)
				if !ok || asset.HasMetadata(field) {
					continue
				}

				value, err := s.compute(ctx, asset, task)
				if err != nil {
					s.logger.Warn("Задача метаданных не выполнена",
						slog.String("task", string(task)),
						slog.String("href", asset.Href),
						slog.String("error", err.Error()),
					)
					continue
				}

				mu.Lock()
				updates, exists := combined[asset.Href]
				if !exists {
					updates = make(map[string]string)
					combined[asset.Href] = updates
				}
				if _, set := updates[field]; !set {
					updates[field] = value
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := compute.Wait(); err != nil {
		return nil, fmt.Errorf("вычисление задач метаданных: %w", err)
	}

	var update errgroup.Group
	update.SetLimit(taskConcurrency)
	for href, fields := range combined {
		update.Go(func() error {
			if err := s.archive.UpdateMetadata(ctx, href, fields); err != nil {
				return upstreamError("обновление метаданных "+href, err)
			}
			return nil
		})
	}
	if err := update.Wait(); err != nil {
		return combined, err
	}
	return combined, nil
}

func (s *TaskService) compute(ctx context.Context, asset *model.Asset, task Task) (string, error) {
	switch task {
	case TaskUUID:
		return NewIdentifier(), nil
	case TaskSHA256:
		content, err := s.content.Original(ctx, asset)
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256(content.Body)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("задача %q не поддерживается", task)
	}
}
