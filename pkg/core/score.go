// pkg/core/score.go
package core

// ScoreCategory selects the counter credited alongside points.
type ScoreCategory uint8

const (
	CategoryNone ScoreCategory = iota
	CategoryAttackLaunched
	CategoryAttackSuccess
	CategoryDataExfiltrated
	CategoryAttackBlocked
	CategoryHoneypotTriggered
	CategoryBan
	CategoryIncidentResolved
)

// TeamScore is the running total of one team.
type TeamScore struct {
	Points             int64 `json:"points"`
	AttacksLaunched    int   `json:"attacksLaunched"`
	AttacksSuccessful  int   `json:"attacksSuccessful"`
	AttacksBlocked     int   `json:"attacksBlocked"`
	HoneypotsTriggered int   `json:"honeypotsTriggered"`
	Bans               int   `json:"bans"`
	IncidentsResolved  int   `json:"incidentsResolved"`
	DataExfiltrated    int   `json:"dataExfiltrated"`
}

// BattleScore holds both teams plus the derived advantage.
type BattleScore struct {
	Red             TeamScore `json:"red"`
	Blue            TeamScore `json:"blue"`
	Advantage       Side      `json:"advantage"`
	AdvantagePoints int64     `json:"advantagePoints"`
}

// Team returns a pointer to the score of t, or nil for TeamSystem.
func (s *BattleScore) Team(t Team) *TeamScore {
	switch t {
	case TeamRed:
		return &s.Red
	case TeamBlue:
		return &s.Blue
	default:
		return nil
	}
}
