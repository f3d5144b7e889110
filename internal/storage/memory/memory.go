// Package memory is an in-process store for development and tests. It also
// doubles as a ledger sink so the export path can run without Google Sheets.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

type expenseRecord struct {
	core.Expense
	exportRef string
	exported  bool
}

type Store struct {
	mu       sync.Mutex
	users    map[int64]core.User
	expenses map[int64]*expenseRecord
	ledger   []core.Expense
	nextUser int64
	nextExp  int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[int64]core.User),
		expenses: make(map[int64]*expenseRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewFromFile seeds users from a file of "name,email,allowance" lines.
// Blank lines and lines starting with # are skipped; a missing file yields
// an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: want name,email,allowance", path, lineNo)
		}
		allowance, err := core.ParseAllowance(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		u := core.User{Name: strings.TrimSpace(parts[0]), Email: strings.TrimSpace(parts[1]), Allowance: allowance}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if _, err := s.CreateUser(context.Background(), u); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	return s, sc.Err()
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("get user %d: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByExternalID(_ context.Context, externalID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if externalID != "" && u.ExternalID == externalID {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("get user by external id %q: %w", externalID, core.ErrNotFound)
}

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// conflicts must be called with mu held.
func (s *Store) conflicts(skipID int64, email, externalID string) bool {
	for id, u := range s.users {
		if id == skipID {
			continue
		}
		if strings.EqualFold(u.Email, email) || (externalID != "" && u.ExternalID == externalID) {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(0, u.Email, u.ExternalID) {
		return core.User{}, fmt.Errorf("create user: %w", core.ErrDuplicate)
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateIdentity(_ context.Context, id int64, name, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("update user %d: %w", id, core.ErrNotFound)
	}
	if s.conflicts(id, email, "") {
		return core.User{}, fmt.Errorf("update user identity: %w", core.ErrDuplicate)
	}
	u.Name, u.Email = name, email
	s.users[id] = u
	return u, nil
}

func (s *Store) UpdateAllowance(_ context.Context, id int64, allowance decimal.Decimal) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("update allowance of user %d: %w", id, core.ErrNotFound)
	}
	u.Allowance = allowance
	s.users[id] = u
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("delete user %d: %w", id, core.ErrNotFound)
	}
	delete(s.users, id)
	for eid, e := range s.expenses {
		if e.UserID == id {
			delete(s.expenses, eid)
		}
	}
	return nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[e.UserID]; !ok {
		return core.Expense{}, fmt.Errorf("create expense for user %d: %w", e.UserID, core.ErrNotFound)
	}
	s.nextExp++
	e.ID = s.nextExp
	e.CreatedAt = s.now()
	s.expenses[e.ID] = &expenseRecord{Expense: e}
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return fmt.Errorf("delete expense %d of user %d: %w", id, userID, core.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

// ListExpenses returns newest first; undated expenses sort last.
func (s *Store) ListExpenses(_ context.Context, userID int64, r core.DateRange) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.UserID != userID {
			continue
		}
		if e.Date.IsZero() && (!r.From.IsZero() || !r.To.IsZero()) {
			continue
		}
		if !r.Contains(e.Date) {
			continue
		}
		out = append(out, e.Expense)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date.IsZero() != b.Date.IsZero() {
			return b.Date.IsZero()
		}
		if c := a.Date.Compare(b.Date); c != 0 {
			return c > 0
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, core.ErrNotFound)
	}
	return e.Expense, nil
}

// ListPendingExport returns unexported expenses, oldest first.
func (s *Store) ListPendingExport(_ context.Context, limit int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if !e.exported {
			out = append(out, e.Expense)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) IsExported(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return false, fmt.Errorf("check expense %d export: %w", id, core.ErrNotFound)
	}
	return e.exported, nil
}

func (s *Store) MarkExported(_ context.Context, id int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return fmt.Errorf("mark expense %d exported: %w", id, core.ErrNotFound)
	}
	e.exported = true
	e.exportRef = ref
	return nil
}

// AppendExpense records the expense in the in-memory ledger and returns a
// synthetic row reference.
func (s *Store) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, e)
	return fmt.Sprintf("mem:%d", len(s.ledger)), nil
}

// Ledger returns a copy of everything appended so far.
func (s *Store) Ledger() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.ledger...)
}
