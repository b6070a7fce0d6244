package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// fakeTx подменяет транзакцию без базы: QueryRow диспетчеризуется по фрагменту
// SQL, Exec только записывается. Запрос без зарегистрированного фрагмента — паника:
// тест не ожидал, что до него дойдёт.
type fakeTx struct {
	pgx.Tx
	rows  map[string]func(dest ...any) error
	execs []string
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	for frag, scan := range f.rows {
		if strings.Contains(sql, frag) {
			return fakeRow{scan: scan}
		}
	}
	panic("unexpected query: " + sql)
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func productRow(stockVal float64, managesLots bool) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*float64)) = stockVal
		*(dest[1].(*bool)) = managesLots
		return nil
	}
}

func lotRow(cur float64, status lots.Status) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*float64)) = cur
		*(dest[1].(*lots.Status)) = status
		return nil
	}
}

// Совокупная дельта по партионному товару увела бы кэш от суммы партий.
func TestApplyDeltaTx_RejectsLotManagedProduct(t *testing.T) {
	tx := &fakeTx{rows: map[string]func(dest ...any) error{
		"FROM products": productRow(10, true),
	}}
	led := New(nil)

	err := led.ApplyDeltaTx(context.Background(), tx, 1, 3, stock.Consume, stock.MoveAdjust, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "manages lots")
	assert.Empty(t, tx.execs, "остатки не должны быть тронуты")
}

// Пустой план делегирует в дельту — для партионного товара отлуп тот же.
func TestApplyPlanTx_EmptyPlanLotManagedRejected(t *testing.T) {
	tx := &fakeTx{rows: map[string]func(dest ...any) error{
		"FROM products": productRow(10, true),
	}}
	led := New(nil)

	plan := stock.Plan{ProductID: 1, Required: 3}
	err := led.ApplyPlanTx(context.Background(), tx, plan, stock.Consume, stock.MoveSale, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "manages lots")
	assert.Empty(t, tx.execs)
}

// Планы приходят и снаружи: consume с отрицательной строкой увеличил бы партию.
func TestApplyPlanTx_RejectsNonPositiveLines(t *testing.T) {
	led := New(nil)

	plan := stock.Plan{
		ProductID: 1,
		Required:  1,
		Lines:     []stock.PlanLine{{LotID: 1, Qty: -5}, {LotID: 2, Qty: 6}},
	}
	// Пустой fakeTx: валидация обязана сработать до первого запроса.
	err := led.ApplyPlanTx(context.Background(), &fakeTx{}, plan, stock.Consume, stock.MoveSale, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be > 0")

	plan.Lines = []stock.PlanLine{{LotID: 1, Qty: 0}, {LotID: 2, Qty: 1}}
	err = led.ApplyPlanTx(context.Background(), &fakeTx{}, plan, stock.Consume, stock.MoveSale, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be > 0")
}

// Остаток уехал с момента построения плана — типизированный конфликт, не 500.
func TestApplyPlanTx_ConflictOnShortLot(t *testing.T) {
	tx := &fakeTx{rows: map[string]func(dest ...any) error{
		"FROM products": productRow(10, true),
		"FROM lots":     lotRow(1, lots.StatusActive),
	}}
	led := New(nil)

	plan := stock.Plan{ProductID: 1, Required: 5, Lines: []stock.PlanLine{{LotID: 7, Qty: 5}}}
	err := led.ApplyPlanTx(context.Background(), tx, plan, stock.Consume, stock.MoveSale, "")

	var conflict *stock.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.LotID)
	assert.Empty(t, tx.execs)
}

// Возврат в партию, которую sweep уже пометил просроченной, разъехался бы
// со сверкой: её остаток из совокупного кэша уже снят.
func TestApplyPlanTx_RestoreIntoExpiredLotConflicts(t *testing.T) {
	tx := &fakeTx{rows: map[string]func(dest ...any) error{
		"FROM products": productRow(10, true),
		"FROM lots":     lotRow(3, lots.StatusExpired),
	}}
	led := New(nil)

	plan := stock.Plan{ProductID: 1, Required: 2, Lines: []stock.PlanLine{{LotID: 9, Qty: 2}}}
	err := led.ApplyPlanTx(context.Background(), tx, plan, stock.Restore, stock.MoveRestore, "")

	var conflict *stock.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(9), conflict.LotID)
	assert.Empty(t, tx.execs)
}

// Сохранение: consume и restore тех же строк возвращают партии в исходное
// состояние, остаток и статус.
func TestNextLotState_ConsumeRestoreConservation(t *testing.T) {
	type lotState struct {
		cur    float64
		status lots.Status
	}
	initial := map[int64]lotState{
		1: {4, lots.StatusActive},
		2: {10, lots.StatusActive},
	}
	lines := []stock.PlanLine{{LotID: 1, Qty: 4}, {LotID: 2, Qty: 2}}

	after := map[int64]lotState{}
	for id, s := range initial {
		after[id] = s
	}
	for _, line := range lines {
		s := after[line.LotID]
		next, nextStatus, err := nextLotState(s.cur, s.status, line.Qty, stock.Consume)
		require.NoError(t, err)
		after[line.LotID] = lotState{next, nextStatus}
	}
	// Полностью списанная партия исчерпана.
	assert.Equal(t, lotState{0, lots.StatusDepleted}, after[1])

	for _, line := range lines {
		s := after[line.LotID]
		next, nextStatus, err := nextLotState(s.cur, s.status, line.Qty, stock.Restore)
		require.NoError(t, err)
		after[line.LotID] = lotState{next, nextStatus}
	}
	assert.Equal(t, initial, after)
}

func TestNextLotState_Conflicts(t *testing.T) {
	_, _, err := nextLotState(4, lots.StatusExpired, 1, stock.Consume)
	require.ErrorIs(t, err, errLotConflict)

	_, _, err = nextLotState(1, lots.StatusActive, 5, stock.Consume)
	require.ErrorIs(t, err, errLotConflict)

	_, _, err = nextLotState(3, lots.StatusExpired, 2, stock.Restore)
	require.ErrorIs(t, err, errLotConflict)

	_, _, err = nextLotState(3, lots.StatusActive, 0, stock.Consume)
	require.Error(t, err)
	require.NotErrorIs(t, err, errLotConflict)

	_, _, err = nextLotState(3, lots.StatusActive, 1, stock.Direction("sideways"))
	require.Error(t, err)
}
