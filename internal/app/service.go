package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"taskhub/api/internal/config"
	"taskhub/api/internal/export"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/metrics"
	"taskhub/api/internal/search"
	"taskhub/api/internal/store"
)

type dataStore interface {
	WithTx(ctx context.Context, fn func(dataStore) error) error
	Ping(ctx context.Context) error

	GetUserByIdentity(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) (store.User, error)
	UpdateUser(context.Context, string, string, string) error
	DeleteUser(context.Context, string) error

	CreateSetting(context.Context, store.Setting) error
	GetSetting(context.Context, string) (store.Setting, error)
	UpdateSetting(context.Context, store.Setting) error
	AddKarmaTotal(context.Context, string, int) error

	CreateProject(context.Context, store.Project) (store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	FindProjectByNameAndCreator(context.Context, string, string) (store.Project, error)
	UpdateProject(context.Context, store.Project) error
	DeleteProject(context.Context, string) error
	NextProjectIndex(context.Context, string) (int, error)
	ListProjectsByCreator(context.Context, string) ([]store.Project, error)
	ListProjectsByMember(context.Context, string) ([]store.Project, error)
	AddProjectMember(context.Context, string, string) error
	ListProjectMembers(context.Context, string) ([]string, error)
	IsProjectMember(context.Context, string, string) (bool, error)
	SetProjectFlag(context.Context, store.ProjectSet, string, string, bool) error
	HasProjectFlag(context.Context, store.ProjectSet, string, string) (bool, error)

	CreateSection(context.Context, store.Section) (store.Section, error)
	GetSection(context.Context, string) (store.Section, error)
	FindSectionByName(context.Context, string) (store.Section, error)
	ListSectionsByProject(context.Context, string) ([]store.Section, error)
	ListSectionsForMember(context.Context, string) ([]store.Section, error)
	UpdateSection(context.Context, store.Section) error
	DeleteSection(context.Context, string) error

	CreateTask(context.Context, store.Task) (store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	UpdateTask(context.Context, store.Task) (store.Task, error)
	DeleteTask(context.Context, string) error
	ListTasksByUser(context.Context, string, string) ([]store.Task, error)
	ListTasksByProject(context.Context, string) ([]store.Task, error)
	ListTasksBySection(context.Context, string) ([]store.Task, error)
	AttachLabel(context.Context, string, string) error
	DetachLabels(context.Context, string) error
	ListTaskLabels(context.Context, string) ([]store.Label, error)

	CreateLabel(context.Context, store.Label) (store.Label, error)
	GetLabel(context.Context, string) (store.Label, error)
	FindLabelByName(context.Context, string) (store.Label, error)
	ListLabelsByAuthor(context.Context, string) ([]store.Label, error)
	UpdateLabel(context.Context, string, string) (store.Label, error)
	DeleteLabel(context.Context, string) error

	CreateKarma(context.Context, store.Karma) (store.Karma, error)
	GetKarma(context.Context, string) (store.Karma, error)
	ListKarmaByUser(context.Context, string) ([]store.Karma, error)

	ListDefaultCategories(context.Context) ([]store.DefaultCategory, error)
	InsertDefaultCategory(context.Context, store.DefaultCategory) error
}

// pgDataStore adapts the Postgres store to dataStore so workflows run their
// transactional steps against the same interface.
type pgDataStore struct {
	*store.PostgresStore
}

func (p pgDataStore) WithTx(ctx context.Context, fn func(dataStore) error) error {
	return p.PostgresStore.WithTx(ctx, func(tx *store.PostgresStore) error {
		return fn(pgDataStore{tx})
	})
}

// taskIndex keeps the search index in step with task writes.
type taskIndex interface {
	IndexTask(search.TaskRecord)
	DeleteTask(id string)
	Search(ctx context.Context, q search.Query) search.Response
}

type projectExporter interface {
	Render(ctx context.Context, format export.Format, project export.Project) (*export.Result, error)
	Publish(ctx context.Context, projectID string, format export.Format, project export.Project) (string, *export.Result, error)
}

type eventRecorder interface {
	RecordEvent(event, result string)
	RecordKarma(points int)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	search   taskIndex
	exporter projectExporter
	events   eventRecorder
	log      logrus.FieldLogger
}

// Options carries the optional collaborators of a Service. Nil members are
// replaced by no-op implementations.
type Options struct {
	Search   *search.Service
	Exporter *export.Service
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	return newService(cfg, pgDataStore{dataStore}, opts)
}

func newService(cfg config.Config, ds dataStore, opts Options) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    ds,
		search:   noopIndex{},
		exporter: export.NewService(nil),
		events:   noopEvents{},
		log:      opts.Logger,
	}
	if opts.Search != nil {
		svc.search = opts.Search
	}
	if opts.Exporter != nil {
		svc.exporter = opts.Exporter
	}
	if opts.Metrics != nil {
		svc.events = opts.Metrics
	}
	if svc.log == nil {
		svc.log = logging.Discard()
	}
	svc.log = svc.log.WithField("component", "app")
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the default category templates when the table is empty.
func (s *Service) Bootstrap(ctx context.Context) error {
	existing, err := s.store.ListDefaultCategories(ctx)
	if err != nil {
		return fmt.Errorf("list default categories: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	seeds, err := loadDefaultCategories(s.cfg.DefaultCategoriesFile)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if err := s.store.InsertDefaultCategory(ctx, seed); err != nil {
			return fmt.Errorf("seed default category %q: %w", seed.Name, err)
		}
	}
	s.log.WithField("categories", len(seeds)).Info("seeded default categories")
	return nil
}

// resolveOwner maps an external identity to the stored user. Every workflow
// resolves the owner before it touches anything else.
func (s *Service) resolveOwner(ctx context.Context, identity string) (store.User, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		errs := fieldErrors{}
		errs.add("identity", msgRequired)
		return store.User{}, errs.err()
	}
	user, err := s.store.GetUserByIdentity(ctx, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, errOwnerNotFound()
	}
	if err != nil {
		return store.User{}, fmt.Errorf("resolve owner: %w", err)
	}
	return user, nil
}

// notFound converts a missing row into the entity's NotFound error and leaves
// every other error wrapped with context.
func notFound(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound(entity)
	}
	return fmt.Errorf("load %s: %w", entity, err)
}

func (s *Service) record(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.events.RecordEvent(event, result)
}

type noopIndex struct{}

func (noopIndex) IndexTask(search.TaskRecord) {}
func (noopIndex) DeleteTask(string)           {}
func (noopIndex) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

type noopEvents struct{}

func (noopEvents) RecordEvent(string, string) {}
func (noopEvents) RecordKarma(int)            {}
