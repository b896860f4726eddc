package scripting

import (
	"math"

	"github.com/dop251/goja"
)

// injectConstants sets read-only table constants on the JS runtime.
func injectConstants(vm *goja.Runtime) {
	vm.Set("PHASE_AWAITING_BET", "awaiting_bet")
	vm.Set("PHASE_COME_OUT", "come_out")
	vm.Set("PHASE_POINT", "point")

	vm.Set("KIND_NATURAL", "natural")
	vm.Set("KIND_CRAPS", "craps")
	vm.Set("KIND_POINT_MADE", "point_made")
	vm.Set("KIND_SEVEN_OUT", "seven_out")
}

// Variables holds the script-visible state of an autoplay session.
type Variables struct {
	Balance     int  `json:"balance"`
	NextBet     int  `json:"nextbet"`
	BaseBet     int  `json:"basebet"`
	PreviousBet int  `json:"previousbet"`
	Win         bool `json:"win"`
	Running     bool `json:"running"`

	// Statistics (pointer, shared with engine)
	Stats *Statistics `json:"-"`

	// Last decided round
	LastRoll int    `json:"lastroll"`
	Point    int    `json:"point"`
	Kind     string `json:"kind"`
	Die1     int    `json:"die1"`
	Die2     int    `json:"die2"`

	LastBet map[string]interface{} `json:"lastBet"`

	// Control
	StopOnWin bool `json:"stoponwin"`
	SleepTime int  `json:"sleeptime"`
}

// NewVariables creates Variables for a fresh session.
func NewVariables(stats *Statistics) *Variables {
	return &Variables{
		Stats:   stats,
		Balance: int(stats.Balance.IntPart()),
		BaseBet: 1,
		NextBet: 1,
		LastBet: map[string]interface{}{
			"amount": 0,
			"win":    false,
			"total":  0,
			"point":  0,
			"kind":   "",
			"rolls":  0,
			"payout": 0,
		},
	}
}

// injectVariables sets all globals on the JS runtime. Read-only semantics
// are enforced in syncFromVM, which only reads back the writable ones.
func injectVariables(vm *goja.Runtime, vars *Variables) {
	vm.Set("balance", vars.Balance)
	vm.Set("nextbet", vars.NextBet)
	vm.Set("basebet", vars.BaseBet)
	vm.Set("previousbet", vars.PreviousBet)
	vm.Set("win", vars.Win)
	vm.Set("running", vars.Running)

	profit, _ := vars.Stats.Profit.Float64()
	wagered, _ := vars.Stats.Wagered.Float64()
	current, _ := vars.Stats.CurrentProfit.Float64()
	vm.Set("bets", vars.Stats.Bets)
	vm.Set("betcount", vars.Stats.Bets)
	vm.Set("rolls", vars.Stats.Rolls)
	vm.Set("wins", vars.Stats.Wins)
	vm.Set("losses", vars.Stats.Losses)
	vm.Set("winstreak", vars.Stats.WinStreak)
	vm.Set("losestreak", vars.Stats.LoseStreak)
	vm.Set("currentstreak", vars.Stats.CurrentStreak)
	vm.Set("profit", profit)
	vm.Set("currentprofit", current)
	vm.Set("wagered", wagered)
	vm.Set("started_bal", vars.Stats.StartBal.IntPart())

	vm.Set("lastroll", vars.LastRoll)
	vm.Set("point", vars.Point)
	vm.Set("kind", vars.Kind)
	vm.Set("die1", vars.Die1)
	vm.Set("die2", vars.Die2)
	vm.Set("lastBet", vars.LastBet)

	vm.Set("stoponwin", vars.StopOnWin)
	vm.Set("sleeptime", vars.SleepTime)
}

// syncFromVM reads the writable variables back from the JS runtime.
func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextBet = toInt(vm.Get("nextbet"))
	vars.BaseBet = toInt(vm.Get("basebet"))
	vars.StopOnWin = toBool(vm.Get("stoponwin"))
	vars.SleepTime = toInt(vm.Get("sleeptime"))
}

// --- Conversion helpers ---

// toInt rounds fractional bets down; the table only takes whole units.
func toInt(v goja.Value) int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Floor(f))
}

func toBool(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	return v.ToBoolean()
}
