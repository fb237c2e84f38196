package mockclickhouserows

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

type Row struct {
	mock.Mock
}

var _ driver.Row = &Row{}

func (m *Row) Err() error {
	return m.Called().Error(0)
}

func (m *Row) Scan(dest ...any) error {
	return m.Called(dest...).Error(0)
}

func (m *Row) ScanStruct(dest any) error {
	return m.Called(dest).Error(0)
}

type Rows struct {
	mock.Mock
}

var _ driver.Rows = &Rows{}

func (m *Rows) Next() bool {
	return m.Called().Bool(0)
}

func (m *Rows) Scan(dest ...any) error {
	return m.Called(dest...).Error(0)
}

func (m *Rows) ScanStruct(dest any) error {
	return m.Called(dest).Error(0)
}

func (m *Rows) ColumnTypes() []driver.ColumnType {
	mockArgs := m.Called()
	if v := mockArgs.Get(0); v != nil {
		return v.([]driver.ColumnType)
	}
	return nil
}

func (m *Rows) Totals(dest ...any) error {
	return m.Called(dest...).Error(0)
}

func (m *Rows) Columns() []string {
	mockArgs := m.Called()
	if v := mockArgs.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *Rows) Close() error {
	return m.Called().Error(0)
}

func (m *Rows) Err() error {
	return m.Called().Error(0)
}
