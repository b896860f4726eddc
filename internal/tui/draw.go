package tui

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/MJE43/craps-pf-go/internal/dice"
)

const (
	pitCols = 41
	pitRows = 17
	pitTop  = 2
	helpKey = "[0-9] bet  [enter] place  [r] roll  [x] reset  [s] new seed  [q] quit"
)

var (
	styleDefault = tcell.StyleDefault
	styleFelt    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleDie     = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	styleResting = styleDie.Bold(true)
	styleDim     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleWin     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleLose    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleAlert   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
)

// Draw renders v onto the screen without showing it.
func Draw(screen tcell.Screen, v View) {
	screen.Clear()
	s := v.State

	drawText(screen, 0, 0, styleDefault, fmt.Sprintf("session %s  nonce %d", short(s.SessionID, 8), s.Nonce))
	drawText(screen, 0, 1, styleDim, fmt.Sprintf("seed %s  client %s", short(s.ServerSeedHash, 16), s.ClientSeed))

	drawPit(screen, 0, pitTop, v.Dice)

	y := pitTop + pitRows + 2
	point := "-"
	if s.Point != 0 {
		point = fmt.Sprint(s.Point)
	}
	drawText(screen, 0, y, styleDefault,
		fmt.Sprintf("wallet %d  bet %d  point %s  phase %s", s.Wallet, s.CurrentBet, point, s.Phase))
	y++

	msgStyle := styleDefault
	if s.GameOver {
		msgStyle = styleAlert
	}
	drawText(screen, 0, y, msgStyle, v.Message)
	y++

	if v.Outcome != "" {
		st := styleWin
		if v.Outcome[0] == 'l' {
			st = styleLose
		}
		drawText(screen, 0, y, st, v.Outcome)
	}
	y++

	if s.LastRoll != nil {
		r := s.LastRoll
		drawText(screen, 0, y, styleDim, fmt.Sprintf("last %d+%d=%d %s", r.Dice[0], r.Dice[1], r.Total, r.Resolution.Kind))
	}
	y++

	prompt := "bet> " + v.BetInput
	if !s.BetEnabled {
		prompt = "bet> (closed)"
	}
	drawText(screen, 0, y, styleDefault, prompt)
	drawText(screen, 0, y+1, styleDim, helpKey)
}

// drawPit draws the table from above: x runs across, z runs down.
func drawPit(screen tcell.Screen, x0, y0 int, ts []dice.DieTransform) {
	w, h := pitCols+2, pitRows+2
	for x := 1; x < w-1; x++ {
		screen.SetContent(x0+x, y0, tcell.RuneHLine, nil, styleFelt)
		screen.SetContent(x0+x, y0+h-1, tcell.RuneHLine, nil, styleFelt)
	}
	for y := 1; y < h-1; y++ {
		screen.SetContent(x0, y0+y, tcell.RuneVLine, nil, styleFelt)
		screen.SetContent(x0+w-1, y0+y, tcell.RuneVLine, nil, styleFelt)
	}
	screen.SetContent(x0, y0, tcell.RuneULCorner, nil, styleFelt)
	screen.SetContent(x0+w-1, y0, tcell.RuneURCorner, nil, styleFelt)
	screen.SetContent(x0, y0+h-1, tcell.RuneLLCorner, nil, styleFelt)
	screen.SetContent(x0+w-1, y0+h-1, tcell.RuneLRCorner, nil, styleFelt)

	for _, t := range ts {
		col, row := PitCell(t.Position)
		st := styleDie
		if t.Sleeping {
			st = styleResting
		}
		screen.SetContent(x0+1+col, y0+1+row, rune('0'+TopFace(t)), nil, st)
	}
}

// PitCell maps a world position to a cell inside the pit border.
func PitCell(p mgl64.Vec3) (col, row int) {
	col = project(p.X(), pitCols)
	row = project(p.Z(), pitRows)
	return col, row
}

func project(v float64, cells int) int {
	f := (v + dice.WallDistance) / (2 * dice.WallDistance)
	i := int(math.Round(f * float64(cells-1)))
	return max(0, min(cells-1, i))
}

// TopFace reads the face currently pointing up.
func TopFace(t dice.DieTransform) int {
	o := t.Orientation
	return dice.ResolveFace(mgl64.Quat{W: o[0], V: mgl64.Vec3{o[1], o[2], o[3]}})
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
