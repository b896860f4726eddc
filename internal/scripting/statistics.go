package scripting

import "github.com/shopspring/decimal"

// Statistics tracks session-level betting statistics. Money amounts are
// decimals so long sessions do not drift.
type Statistics struct {
	Bets     int             `json:"bets"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Rolls    int             `json:"rolls"`
	Wagered  decimal.Decimal `json:"wagered"`
	Profit   decimal.Decimal `json:"profit"`
	Balance  decimal.Decimal `json:"balance"`
	StartBal decimal.Decimal `json:"startBal"`

	WinStreak  int `json:"winStreak"`
	LoseStreak int `json:"loseStreak"`
	// Positive = win streak, negative = lose streak.
	CurrentStreak int `json:"currentStreak"`

	HighestStreak int             `json:"highestStreak"`
	LowestStreak  int             `json:"lowestStreak"`
	HighestBet    decimal.Decimal `json:"highestBet"`
	HighestProfit decimal.Decimal `json:"highestProfit"`
	LowestProfit  decimal.Decimal `json:"lowestProfit"`

	CurrentProfit decimal.Decimal `json:"currentProfit"`
	PreviousBet   decimal.Decimal `json:"previousBet"`

	// Decisions by kind, e.g. "natural": 3
	Kinds map[string]int `json:"kinds"`
}

// ChartPoint is a single data point for the profit chart.
type ChartPoint struct {
	BetNumber int             `json:"x"`
	Profit    decimal.Decimal `json:"y"`
	Win       bool            `json:"win"`
}

// ChartBuffer holds a rolling window of chart data points.
type ChartBuffer struct {
	Points []ChartPoint `json:"points"`
	Max    int          `json:"-"`
}

// NewChartBuffer creates a chart buffer with the given max capacity.
func NewChartBuffer(max int) *ChartBuffer {
	if max <= 0 {
		max = 50
	}
	return &ChartBuffer{
		Points: make([]ChartPoint, 0, max),
		Max:    max,
	}
}

// Push adds a data point. When the buffer reaches twice Max it keeps every
// other point, preserving first and last.
func (cb *ChartBuffer) Push(p ChartPoint) {
	cb.Points = append(cb.Points, p)

	if len(cb.Points) >= cb.Max*2 {
		decimated := make([]ChartPoint, 0, cb.Max)
		decimated = append(decimated, cb.Points[0])
		for i := 2; i < len(cb.Points)-1; i += 2 {
			decimated = append(decimated, cb.Points[i])
		}
		decimated = append(decimated, cb.Points[len(cb.Points)-1])
		cb.Points = decimated
	}
}

// Reset clears all chart data.
func (cb *ChartBuffer) Reset() {
	cb.Points = cb.Points[:0]
}

// NewStatistics creates a Statistics with starting balance.
func NewStatistics(startBalance int) *Statistics {
	bal := decimal.NewFromInt(int64(startBalance))
	return &Statistics{
		Balance:  bal,
		StartBal: bal,
		Kinds:    make(map[string]int),
	}
}

// Reset clears all stats and sets the starting balance to current.
func (s *Statistics) Reset() {
	bal := s.Balance
	*s = Statistics{
		Balance:  bal,
		StartBal: bal,
		Kinds:    make(map[string]int),
	}
}

// BetResult holds the outcome of one pass-line round.
type BetResult struct {
	Amount int    `json:"amount"`
	Payout int    `json:"payout"`
	Win    bool   `json:"win"`
	Total  int    `json:"total"` // deciding roll
	Point  int    `json:"point,omitempty"`
	Kind   string `json:"kind"`
	Rolls  int    `json:"rolls"`
}

// RecordBet processes a completed round and updates all statistics.
func (s *Statistics) RecordBet(result BetResult) {
	s.Bets++
	s.Rolls += result.Rolls
	s.Kinds[result.Kind]++

	amount := decimal.NewFromInt(int64(result.Amount))
	profit := decimal.NewFromInt(int64(result.Payout)).Sub(amount)
	s.CurrentProfit = profit
	s.Profit = s.Profit.Add(profit)
	s.Wagered = s.Wagered.Add(amount)
	s.PreviousBet = amount
	s.Balance = s.Balance.Add(profit)

	if result.Win {
		s.Wins++
		s.WinStreak++
		s.LoseStreak = 0
		s.CurrentStreak = s.WinStreak
	} else {
		s.Losses++
		s.LoseStreak++
		s.WinStreak = 0
		s.CurrentStreak = -s.LoseStreak
	}

	if amount.GreaterThan(s.HighestBet) {
		s.HighestBet = amount
	}
	if s.Profit.GreaterThan(s.HighestProfit) {
		s.HighestProfit = s.Profit
	}
	if s.Profit.LessThan(s.LowestProfit) {
		s.LowestProfit = s.Profit
	}
	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
	if s.CurrentStreak < s.LowestStreak {
		s.LowestStreak = s.CurrentStreak
	}
}

// ProfitPercent returns profit as a percentage of starting balance.
func (s *Statistics) ProfitPercent() decimal.Decimal {
	if s.StartBal.IsZero() {
		return decimal.Zero
	}
	return s.Profit.Div(s.StartBal.Abs()).Mul(decimal.NewFromInt(100))
}

// ROI returns profit as a percentage of the amount wagered.
func (s *Statistics) ROI() decimal.Decimal {
	if s.Wagered.IsZero() {
		return decimal.Zero
	}
	return s.Profit.Div(s.Wagered).Mul(decimal.NewFromInt(100))
}
