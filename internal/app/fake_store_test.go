package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"taskhub/api/internal/config"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/store"
)

type membership struct {
	projectID string
	userID    string
	index     int
}

type flagKey struct {
	set       store.ProjectSet
	projectID string
	userID    string
}

type taskLabel struct {
	taskID  string
	labelID string
}

// fakeStore is an in-memory dataStore. WithTx snapshots the state and restores
// it when fn fails, which is enough to observe rollback behavior.
type fakeStore struct {
	users      map[string]store.User
	settings   map[string]store.Setting
	projects   map[string]store.Project
	members    []membership
	flags      map[flagKey]bool
	sections   map[string]store.Section
	tasks      map[string]store.Task
	taskLabels []taskLabel
	labels     map[string]store.Label
	karma      []store.Karma
	defaults   []store.DefaultCategory

	clock int
	txs   int

	pingFn          func(context.Context) error
	createProjectFn func(store.Project) error
	attachLabelFn   func(taskID, labelID string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]store.User{},
		settings: map[string]store.Setting{},
		projects: map[string]store.Project{},
		flags:    map[flagKey]bool{},
		sections: map[string]store.Section{},
		tasks:    map[string]store.Task{},
		labels:   map[string]store.Label{},
	}
}

func newTestService(fs *fakeStore) *Service {
	return newService(config.Config{TaskLabelPolicy: config.LabelPolicyPartial, KarmaTaskPoint: 1}, fs, Options{
		Logger: logging.Discard(),
	})
}

func (f *fakeStore) now() time.Time {
	f.clock++
	return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.clock) * time.Second)
}

type fakeSnapshot struct {
	users      map[string]store.User
	settings   map[string]store.Setting
	projects   map[string]store.Project
	members    []membership
	flags      map[flagKey]bool
	sections   map[string]store.Section
	tasks      map[string]store.Task
	taskLabels []taskLabel
	labels     map[string]store.Label
	karma      []store.Karma
	defaults   []store.DefaultCategory
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (f *fakeStore) snapshot() fakeSnapshot {
	return fakeSnapshot{
		users:      copyMap(f.users),
		settings:   copyMap(f.settings),
		projects:   copyMap(f.projects),
		members:    append([]membership(nil), f.members...),
		flags:      copyMap(f.flags),
		sections:   copyMap(f.sections),
		tasks:      copyMap(f.tasks),
		taskLabels: append([]taskLabel(nil), f.taskLabels...),
		labels:     copyMap(f.labels),
		karma:      append([]store.Karma(nil), f.karma...),
		defaults:   append([]store.DefaultCategory(nil), f.defaults...),
	}
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.users, f.settings, f.projects = s.users, s.settings, s.projects
	f.members, f.flags, f.sections = s.members, s.flags, s.sections
	f.tasks, f.taskLabels, f.labels = s.tasks, s.taskLabels, s.labels
	f.karma, f.defaults = s.karma, s.defaults
}

func (f *fakeStore) WithTx(_ context.Context, fn func(dataStore) error) error {
	f.txs++
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// Users

func (f *fakeStore) GetUserByIdentity(_ context.Context, identity string) (store.User, error) {
	for _, u := range f.users {
		if u.Identity == identity {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	if _, err := f.GetUserByIdentity(ctx, u.Identity); err == nil {
		return store.User{}, store.ErrDuplicate
	}
	u.CreatedAt = f.now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, id, displayName, address string) error {
	u := f.users[id]
	u.DisplayName, u.Address = displayName, address
	f.users[id] = u
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	delete(f.users, id)
	delete(f.settings, id)
	for pid, p := range f.projects {
		if p.CreatorID == id {
			f.deleteProject(pid)
		}
	}
	for tid, t := range f.tasks {
		if t.UserID == id {
			f.deleteTask(tid)
		}
	}
	for lid, l := range f.labels {
		if l.AuthorID == id {
			delete(f.labels, lid)
		}
	}
	return nil
}

// Settings

func (f *fakeStore) CreateSetting(_ context.Context, st store.Setting) error {
	f.settings[st.UserID] = st
	return nil
}

func (f *fakeStore) GetSetting(_ context.Context, userID string) (store.Setting, error) {
	st, ok := f.settings[userID]
	if !ok {
		return store.Setting{}, sql.ErrNoRows
	}
	return st, nil
}

func (f *fakeStore) UpdateSetting(_ context.Context, st store.Setting) error {
	current := f.settings[st.UserID]
	st.Karma = current.Karma
	f.settings[st.UserID] = st
	return nil
}

func (f *fakeStore) AddKarmaTotal(_ context.Context, userID string, delta int) error {
	st := f.settings[userID]
	st.Karma += delta
	f.settings[userID] = st
	return nil
}

// Projects

func (f *fakeStore) CreateProject(_ context.Context, p store.Project) (store.Project, error) {
	if f.createProjectFn != nil {
		if err := f.createProjectFn(p); err != nil {
			return store.Project{}, err
		}
	}
	p.CreatedAt = f.now()
	p.UpdatedAt = p.CreatedAt
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) FindProjectByNameAndCreator(_ context.Context, name, creatorID string) (store.Project, error) {
	var found []store.Project
	for _, p := range f.projects {
		if p.Name == name && p.CreatorID == creatorID {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return store.Project{}, sql.ErrNoRows
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found[0], nil
}

func (f *fakeStore) UpdateProject(_ context.Context, p store.Project) error {
	current, ok := f.projects[p.ID]
	if !ok {
		return nil
	}
	current.Name, current.Color, current.Icon = p.Name, p.Color, p.Icon
	current.Comment, current.IsCompPublic, current.Deleted = p.Comment, p.IsCompPublic, p.Deleted
	f.projects[p.ID] = current
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id string) error {
	f.deleteProject(id)
	return nil
}

func (f *fakeStore) deleteProject(id string) {
	delete(f.projects, id)
	kept := f.members[:0]
	for _, m := range f.members {
		if m.projectID != id {
			kept = append(kept, m)
		}
	}
	f.members = kept
	for key := range f.flags {
		if key.projectID == id {
			delete(f.flags, key)
		}
	}
	for sid, sec := range f.sections {
		if sec.ProjectID == id {
			delete(f.sections, sid)
		}
	}
	for tid, t := range f.tasks {
		if t.ProjectID == id {
			f.deleteTask(tid)
		}
	}
}

func (f *fakeStore) NextProjectIndex(_ context.Context, creatorID string) (int, error) {
	next := 1
	for _, p := range f.projects {
		if p.CreatorID == creatorID && p.Index >= next {
			next = p.Index + 1
		}
	}
	return next, nil
}

func (f *fakeStore) ListProjectsByCreator(_ context.Context, creatorID string) ([]store.Project, error) {
	var out []store.Project
	for _, p := range f.projects {
		if p.CreatorID == creatorID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeStore) ListProjectsByMember(_ context.Context, userID string) ([]store.Project, error) {
	var ms []membership
	for _, m := range f.members {
		if m.userID == userID {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].index < ms[j].index })
	out := make([]store.Project, 0, len(ms))
	for _, m := range ms {
		out = append(out, f.projects[m.projectID])
	}
	return out, nil
}

func (f *fakeStore) AddProjectMember(_ context.Context, projectID, userID string) error {
	next := 1
	for _, m := range f.members {
		if m.userID != userID {
			continue
		}
		if m.projectID == projectID {
			return nil
		}
		if m.index >= next {
			next = m.index + 1
		}
	}
	f.members = append(f.members, membership{projectID: projectID, userID: userID, index: next})
	return nil
}

func (f *fakeStore) ListProjectMembers(_ context.Context, projectID string) ([]string, error) {
	var out []string
	for _, m := range f.members {
		if m.projectID == projectID {
			out = append(out, m.userID)
		}
	}
	return out, nil
}

func (f *fakeStore) IsProjectMember(_ context.Context, projectID, userID string) (bool, error) {
	for _, m := range f.members {
		if m.projectID == projectID && m.userID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetProjectFlag(_ context.Context, set store.ProjectSet, projectID, userID string, member bool) error {
	if set != store.ProjectFavorites && set != store.ProjectArchives {
		return fmt.Errorf("unknown project set %q", set)
	}
	key := flagKey{set: set, projectID: projectID, userID: userID}
	if member {
		f.flags[key] = true
	} else {
		delete(f.flags, key)
	}
	return nil
}

func (f *fakeStore) HasProjectFlag(_ context.Context, set store.ProjectSet, projectID, userID string) (bool, error) {
	return f.flags[flagKey{set: set, projectID: projectID, userID: userID}], nil
}

func (f *fakeStore) flagCount(set store.ProjectSet, projectID string) int {
	n := 0
	for key := range f.flags {
		if key.set == set && key.projectID == projectID {
			n++
		}
	}
	return n
}

// Sections

func (f *fakeStore) CreateSection(_ context.Context, sec store.Section) (store.Section, error) {
	sec.CreatedAt = f.now()
	sec.ProjectName = f.projects[sec.ProjectID].Name
	f.sections[sec.ID] = sec
	return sec, nil
}

func (f *fakeStore) GetSection(_ context.Context, id string) (store.Section, error) {
	sec, ok := f.sections[id]
	if !ok {
		return store.Section{}, sql.ErrNoRows
	}
	sec.ProjectName = f.projects[sec.ProjectID].Name
	return sec, nil
}

func (f *fakeStore) FindSectionByName(_ context.Context, name string) (store.Section, error) {
	var found []store.Section
	for _, sec := range f.sections {
		if sec.Name == name {
			found = append(found, sec)
		}
	}
	if len(found) == 0 {
		return store.Section{}, sql.ErrNoRows
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found[0], nil
}

func (f *fakeStore) sortedSections(keep func(store.Section) bool) []store.Section {
	var out []store.Section
	for _, sec := range f.sections {
		if keep(sec) {
			sec.ProjectName = f.projects[sec.ProjectID].Name
			out = append(out, sec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) ListSectionsByProject(_ context.Context, projectID string) ([]store.Section, error) {
	return f.sortedSections(func(sec store.Section) bool { return sec.ProjectID == projectID }), nil
}

func (f *fakeStore) ListSectionsForMember(ctx context.Context, userID string) ([]store.Section, error) {
	return f.sortedSections(func(sec store.Section) bool {
		member, _ := f.IsProjectMember(ctx, sec.ProjectID, userID)
		return member
	}), nil
}

func (f *fakeStore) UpdateSection(_ context.Context, sec store.Section) error {
	current := f.sections[sec.ID]
	current.Name, current.Deleted, current.Archived = sec.Name, sec.Deleted, sec.Archived
	f.sections[sec.ID] = current
	return nil
}

func (f *fakeStore) DeleteSection(_ context.Context, id string) error {
	delete(f.sections, id)
	for tid, t := range f.tasks {
		if t.SectionID != nil && *t.SectionID == id {
			t.SectionID = nil
			f.tasks[tid] = t
		}
	}
	return nil
}

// Tasks

func (f *fakeStore) CreateTask(_ context.Context, t store.Task) (store.Task, error) {
	t.CreatedAt = f.now()
	t.UpdatedAt = t.CreatedAt
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) GetTask(_ context.Context, id string) (store.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, t store.Task) (store.Task, error) {
	if _, ok := f.tasks[t.ID]; !ok {
		return store.Task{}, fmt.Errorf("update task: %w", sql.ErrNoRows)
	}
	t.UpdatedAt = f.now()
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, id string) error {
	f.deleteTask(id)
	return nil
}

func (f *fakeStore) deleteTask(id string) {
	delete(f.tasks, id)
	kept := f.taskLabels[:0]
	for _, tl := range f.taskLabels {
		if tl.taskID != id {
			kept = append(kept, tl)
		}
	}
	f.taskLabels = kept
}

func (f *fakeStore) sortedTasks(keep func(store.Task) bool) []store.Task {
	var out []store.Task
	for _, t := range f.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) ListTasksByUser(_ context.Context, userID, projectID string) ([]store.Task, error) {
	return f.sortedTasks(func(t store.Task) bool {
		return t.UserID == userID && (projectID == "" || t.ProjectID == projectID)
	}), nil
}

func (f *fakeStore) ListTasksByProject(_ context.Context, projectID string) ([]store.Task, error) {
	return f.sortedTasks(func(t store.Task) bool { return t.ProjectID == projectID }), nil
}

func (f *fakeStore) ListTasksBySection(_ context.Context, sectionID string) ([]store.Task, error) {
	return f.sortedTasks(func(t store.Task) bool { return t.SectionID != nil && *t.SectionID == sectionID }), nil
}

func (f *fakeStore) AttachLabel(_ context.Context, taskID, labelID string) error {
	if f.attachLabelFn != nil {
		if err := f.attachLabelFn(taskID, labelID); err != nil {
			return err
		}
	}
	for _, tl := range f.taskLabels {
		if tl.taskID == taskID && tl.labelID == labelID {
			return nil
		}
	}
	f.taskLabels = append(f.taskLabels, taskLabel{taskID: taskID, labelID: labelID})
	return nil
}

func (f *fakeStore) DetachLabels(_ context.Context, taskID string) error {
	kept := f.taskLabels[:0]
	for _, tl := range f.taskLabels {
		if tl.taskID != taskID {
			kept = append(kept, tl)
		}
	}
	f.taskLabels = kept
	return nil
}

func (f *fakeStore) ListTaskLabels(_ context.Context, taskID string) ([]store.Label, error) {
	var out []store.Label
	for _, tl := range f.taskLabels {
		if tl.taskID == taskID {
			out = append(out, f.labels[tl.labelID])
		}
	}
	return out, nil
}

// Labels

func (f *fakeStore) CreateLabel(_ context.Context, l store.Label) (store.Label, error) {
	l.CreatedAt = f.now()
	l.UpdatedAt = l.CreatedAt
	f.labels[l.ID] = l
	return l, nil
}

func (f *fakeStore) GetLabel(_ context.Context, id string) (store.Label, error) {
	l, ok := f.labels[id]
	if !ok {
		return store.Label{}, sql.ErrNoRows
	}
	return l, nil
}

func (f *fakeStore) FindLabelByName(_ context.Context, name string) (store.Label, error) {
	var found []store.Label
	for _, l := range f.labels {
		if l.Name == name {
			found = append(found, l)
		}
	}
	if len(found) == 0 {
		return store.Label{}, sql.ErrNoRows
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found[0], nil
}

func (f *fakeStore) ListLabelsByAuthor(_ context.Context, authorID string) ([]store.Label, error) {
	var out []store.Label
	for _, l := range f.labels {
		if l.AuthorID == authorID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateLabel(_ context.Context, id, name string) (store.Label, error) {
	l, ok := f.labels[id]
	if !ok {
		return store.Label{}, sql.ErrNoRows
	}
	l.Name = name
	l.UpdatedAt = f.now()
	f.labels[id] = l
	return l, nil
}

func (f *fakeStore) DeleteLabel(_ context.Context, id string) error {
	delete(f.labels, id)
	kept := f.taskLabels[:0]
	for _, tl := range f.taskLabels {
		if tl.labelID != id {
			kept = append(kept, tl)
		}
	}
	f.taskLabels = kept
	return nil
}

// Karma

func (f *fakeStore) CreateKarma(_ context.Context, k store.Karma) (store.Karma, error) {
	k.CreatedAt = f.now()
	k.UpdatedAt = k.CreatedAt
	f.karma = append(f.karma, k)
	return k, nil
}

func (f *fakeStore) GetKarma(_ context.Context, id string) (store.Karma, error) {
	for _, k := range f.karma {
		if k.ID == id {
			return k, nil
		}
	}
	return store.Karma{}, sql.ErrNoRows
}

func (f *fakeStore) ListKarmaByUser(_ context.Context, userID string) ([]store.Karma, error) {
	var out []store.Karma
	for i := len(f.karma) - 1; i >= 0; i-- {
		if f.karma[i].UserID == userID {
			out = append(out, f.karma[i])
		}
	}
	return out, nil
}

// Default categories

func (f *fakeStore) ListDefaultCategories(context.Context) ([]store.DefaultCategory, error) {
	out := append([]store.DefaultCategory(nil), f.defaults...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeStore) InsertDefaultCategory(_ context.Context, item store.DefaultCategory) error {
	for _, existing := range f.defaults {
		if existing.ID == item.ID {
			return nil
		}
	}
	f.defaults = append(f.defaults, item)
	return nil
}

// mutationCount is a coarse fingerprint of every table, used to assert that a
// failed workflow wrote nothing.
func (f *fakeStore) mutationCount() int {
	return len(f.users) + len(f.settings) + len(f.projects) + len(f.members) + len(f.flags) +
		len(f.sections) + len(f.tasks) + len(f.taskLabels) + len(f.labels) + len(f.karma)
}
