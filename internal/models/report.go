package models

import "time"

// ReportTimezone is the timezone the reporting service operates in.
// Data dates, "today" comparisons and write timestamps all use it.
const ReportTimezone = "Asia/Kolkata"

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// SheetHeaders is the fixed 10-column header row of report sheets.
// Column order matches ReportRow.Values.
var SheetHeaders = []string{
	"写入时间",
	"群组",
	"数据日期",
	"渠道",
	"新增注册用户",
	"新增付费人数",
	"新增付费金额",
	"总充值金额",
	"总提现金额",
	"充提差",
}

// ReportRow is one channel's metrics for one data date, the unit
// written to a report sheet. Immutable once built from API data.
type ReportRow struct {
	WrittenAt     time.Time `json:"written_at"`
	GroupName     string    `json:"group_name"`
	DataDate      string    `json:"data_date"` // YYYY-MM-DD
	Channel       string    `json:"channel"`
	Registrations int64     `json:"registrations"`
	NewPayers     int64     `json:"new_payers"`
	NewPayAmount  float64   `json:"new_pay_amount"`
	TotalDeposit  float64   `json:"total_deposit"`
	TotalWithdraw float64   `json:"total_withdraw"`
	DepositDiff   float64   `json:"deposit_withdraw_diff"`
}

// Values returns the row in sheet column order A..J.
func (r ReportRow) Values() []interface{} {
	return []interface{}{
		r.WrittenAt.Format(DateTimeLayout),
		r.GroupName,
		r.DataDate,
		r.Channel,
		r.Registrations,
		r.NewPayers,
		r.NewPayAmount,
		r.TotalDeposit,
		r.TotalWithdraw,
		r.DepositDiff,
	}
}
