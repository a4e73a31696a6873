package guidance

// Direction is one of the four guide moves.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Command returns the protocol text of the move: v= selects the axis,
// d= the sense.
func (d Direction) Command() string {
	switch d {
	case Up:
		return "v=1\nd=1\n"
	case Down:
		return "v=1\nd=0\n"
	case Left:
		return "v=0\nd=0\n"
	case Right:
		return "v=0\nd=1\n"
	}
	return ""
}

// Axis names used in logs, metrics and events.
const (
	AxisHorizontal = "horizontal"
	AxisVertical   = "vertical"
)

func horizontal(dx float64) Direction {
	if dx > 0 {
		return Right
	}
	return Left
}

func vertical(dy float64) Direction {
	if dy > 0 {
		return Down
	}
	return Up
}
