// pkg/core/defense.go
package core

// DefenseStatus is the operating state of a Defense.
type DefenseStatus string

const (
	DefenseIdle        DefenseStatus = "idle"
	DefenseActive      DefenseStatus = "active"
	DefenseBlocking    DefenseStatus = "blocking"
	DefenseCompromised DefenseStatus = "compromised"
)

// Defense is a protective mechanism able to block specific attack kinds.
type Defense struct {
	ID       string        `json:"id"`
	Kind     DefenseKind   `json:"kind"`
	Status   DefenseStatus `json:"status"`
	Strength int           `json:"strength"`
	Blocked  int           `json:"blocked"`
	// Reactive defenses stay idle until a breach of a kind they block.
	Reactive bool `json:"reactive,omitempty"`
	// TriggeredBy references the attack that activated a reactive defense.
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// CanBlock reports whether the defense is currently able to engage.
func (d Defense) CanBlock() bool {
	return d.Status == DefenseActive || d.Status == DefenseBlocking
}
