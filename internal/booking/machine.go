package booking

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Catalog is the read-only doctor/slot snapshot handed to the state machine.
// The machine never mutates availability; only the finalizer does.
type Catalog struct {
	Doctors   []Doctor
	OpenSlots map[string][]Slot // doctor ID -> open slots, soonest first
}

func (c Catalog) SlotsFor(doctorID string) []Slot {
	return c.OpenSlots[doctorID]
}

// MatchDoctor resolves an utterance to a doctor by case-insensitive substring
// match against names and specialties.
func (c Catalog) MatchDoctor(utterance string) (*Doctor, bool) {
	lower := strings.ToLower(utterance)
	for i := range c.Doctors {
		d := &c.Doctors[i]
		nameToken := strings.ToLower(strings.TrimPrefix(d.Name, "Dr. "))
		if strings.Contains(lower, nameToken) || strings.Contains(lower, strings.ToLower(d.Specialty)) {
			return d, true
		}
	}
	return nil, false
}

// MatchSlot resolves an utterance to one of the given open slots. Accepted
// forms: a 1-based list position, an HH:MM time, or a YYYY-MM-DD date that
// identifies exactly one slot.
func MatchSlot(utterance string, slots []Slot) (*Slot, bool) {
	trimmed := strings.TrimSpace(utterance)
	if n, err := strconv.Atoi(trimmed); err == nil {
		if n >= 1 && n <= len(slots) {
			return &slots[n-1], true
		}
		return nil, false
	}

	lower := strings.ToLower(trimmed)
	var matched *Slot
	for i := range slots {
		s := &slots[i]
		timeToken := s.StartTime.Format("15:04")
		dateToken := s.StartTime.Format("2006-01-02")
		if strings.Contains(lower, timeToken) || strings.Contains(lower, dateToken) {
			if matched != nil {
				return nil, false // ambiguous
			}
			matched = s
		}
	}
	if matched != nil {
		return matched, true
	}
	return nil, false
}

// Effect is a side-effect request emitted by a transition. The machine itself
// never performs I/O.
type Effect int

const (
	EffectNone Effect = iota
	EffectFinalize
)

// Transition is the full output of one state-machine step.
type Transition struct {
	Next   Step
	Fields PatientInfo
	Reply  string
	Effect Effect
}

type stepHandler func(fields PatientInfo, utterance string, cat Catalog) Transition

// transitions is the closed transition table. Every reachable step has an
// entry; Advance panics on anything else, which would be a programming error.
var transitions = map[Step]stepHandler{
	StepGreeting:        advanceGreeting,
	StepCollectName:     advanceName,
	StepCollectPhone:    advancePhone,
	StepCollectSymptoms: advanceSymptoms,
	StepCollectDoctor:   advanceDoctor,
	StepCollectSlot:     advanceSlot,
	StepConfirm:         advanceConfirm,
	StepComplete:        advanceComplete,
}

// Advance computes the next step, updated fields, reply and side-effect
// request for one user utterance. It is a pure function: extraction failure
// is never fatal, it re-asks and stays put.
func Advance(step Step, fields PatientInfo, utterance string, cat Catalog) Transition {
	handler, ok := transitions[step]
	if !ok {
		panic(fmt.Sprintf("booking: unknown conversation step %q", step))
	}
	if strings.TrimSpace(utterance) == "" && step != StepComplete {
		return Transition{Next: step, Fields: fields, Reply: emptyUtteranceReply(step, fields, cat)}
	}
	return handler(fields, utterance, cat)
}

func advanceGreeting(fields PatientInfo, utterance string, cat Catalog) Transition {
	return Transition{
		Next:   StepCollectName,
		Fields: fields,
		Reply:  "Nice to meet you! Could you share your full name?",
	}
}

func advanceName(fields PatientInfo, utterance string, cat Catalog) Transition {
	name := strings.TrimSpace(utterance)
	if !looksLikeName(name) {
		return Transition{
			Next:   StepCollectName,
			Fields: fields,
			Reply:  "Sorry, I didn't catch a name there. Please tell me your full name, letters only.",
		}
	}
	fields.Name = name
	return Transition{
		Next:   StepCollectPhone,
		Fields: fields,
		Reply:  fmt.Sprintf("Thanks, %s. What's the best phone number to reach you on?", name),
	}
}

func advancePhone(fields PatientInfo, utterance string, cat Catalog) Transition {
	phone, ok := extractPhone(utterance)
	if !ok {
		return Transition{
			Next:   StepCollectPhone,
			Fields: fields,
			Reply:  "That doesn't look like a phone number. Please share a number with at least 10 digits.",
		}
	}
	fields.Phone = phone
	return Transition{
		Next:   StepCollectSymptoms,
		Fields: fields,
		Reply:  "Got it. Can you briefly describe your symptoms or the reason for your visit?",
	}
}

func advanceSymptoms(fields PatientInfo, utterance string, cat Catalog) Transition {
	fields.Symptoms = strings.TrimSpace(utterance)
	return Transition{
		Next:   StepCollectDoctor,
		Fields: fields,
		Reply:  "Thank you for sharing that. Which of our doctors would you like to see?\n" + formatDoctorList(cat),
	}
}

func advanceDoctor(fields PatientInfo, utterance string, cat Catalog) Transition {
	doc, ok := cat.MatchDoctor(utterance)
	if !ok {
		return Transition{
			Next:   StepCollectDoctor,
			Fields: fields,
			Reply:  "I couldn't match that to one of our doctors. Here's who is available:\n" + formatDoctorList(cat),
		}
	}
	fields.DoctorID = doc.ID
	slots := cat.SlotsFor(doc.ID)
	if len(slots) == 0 {
		return Transition{
			Next:   StepCollectSlot,
			Fields: fields,
			Reply:  fmt.Sprintf("%s currently has no open slots. You can name a different doctor to check their availability.", doc.Name),
		}
	}
	return Transition{
		Next:   StepCollectSlot,
		Fields: fields,
		Reply: fmt.Sprintf("%s has the following openings:\n%s\nWhich one works for you? Reply with a number, a time like 09:00, or a date.",
			doc.Name, formatSlotList(slots)),
	}
}

func advanceSlot(fields PatientInfo, utterance string, cat Catalog) Transition {
	// A different doctor can still be named here; availability surprises
	// (an empty list after selection) would otherwise dead-end the flow.
	if doc, ok := cat.MatchDoctor(utterance); ok && doc.ID != fields.DoctorID {
		fields.DoctorID = doc.ID
		fields.SlotID = uuid.Nil
		return advanceDoctor(fields, utterance, cat)
	}

	doc := cat.doctorByID(fields.DoctorID)
	slots := cat.SlotsFor(fields.DoctorID)
	if len(slots) == 0 {
		return Transition{
			Next:   StepCollectSlot,
			Fields: fields,
			Reply:  fmt.Sprintf("%s has no remaining availability right now. Please name a different doctor.", doctorDisplayName(doc)),
		}
	}

	slot, ok := MatchSlot(utterance, slots)
	if !ok {
		return Transition{
			Next:   StepCollectSlot,
			Fields: fields,
			Reply:  fmt.Sprintf("I couldn't match that to an open slot. %s's openings are:\n%s", doctorDisplayName(doc), formatSlotList(slots)),
		}
	}
	fields.SlotID = slot.ID
	return Transition{
		Next:   StepConfirm,
		Fields: fields,
		Reply:  confirmRecap(fields, cat, slot),
	}
}

func advanceConfirm(fields PatientInfo, utterance string, cat Catalog) Transition {
	lower := strings.ToLower(utterance)
	switch {
	case containsAny(lower, affirmations):
		return Transition{
			Next:   StepComplete,
			Fields: fields,
			Effect: EffectFinalize,
			Reply:  fmt.Sprintf("You're all set! Your appointment is booked and a confirmation will be sent to %s.", fields.Phone),
		}
	case containsAny(lower, negations):
		// Back edge: only the doctor/slot choice is discarded.
		fields.DoctorID = ""
		fields.SlotID = uuid.Nil
		return Transition{
			Next:   StepCollectDoctor,
			Fields: fields,
			Reply:  "No problem, let's adjust that. Which doctor would you like instead?\n" + formatDoctorList(cat),
		}
	default:
		return Transition{
			Next:   StepConfirm,
			Fields: fields,
			Reply:  "Please reply yes to confirm the booking, or no to pick a different doctor or time.",
		}
	}
}

func advanceComplete(fields PatientInfo, utterance string, cat Catalog) Transition {
	return Transition{
		Next:   StepComplete,
		Fields: fields,
		Reply:  "Your booking is already complete. If you need another appointment, please start a new session. Take care!",
	}
}

var affirmations = []string{"yes", "confirm", "book", "schedule", "sure", "ok", "yep", "yeah", "correct"}

var negations = []string{"no", "change", "different", "wrong", "restart", "nope", "cancel"}

func containsAny(lower string, tokens []string) bool {
	for _, tok := range tokens {
		for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if word == tok {
				return true
			}
		}
	}
	return false
}

// looksLikeName accepts one to three words made of letters, apostrophes and
// hyphens.
func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}

func extractPhone(utterance string) (string, bool) {
	digits := 0
	for _, r := range utterance {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 {
		return "", false
	}
	return strings.TrimSpace(utterance), true
}

func (c Catalog) doctorByID(id string) *Doctor {
	for i := range c.Doctors {
		if c.Doctors[i].ID == id {
			return &c.Doctors[i]
		}
	}
	return nil
}

func doctorDisplayName(d *Doctor) string {
	if d == nil {
		return "The selected doctor"
	}
	return d.Name
}

func formatDoctorList(cat Catalog) string {
	var b strings.Builder
	for _, d := range cat.Doctors {
		fmt.Fprintf(&b, "- %s (%s)\n", d.Name, d.Specialty)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSlotList(slots []Slot) string {
	var b strings.Builder
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s at %s\n", i+1, s.StartTime.Format("Mon 2006-01-02"), s.StartTime.Format("15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func confirmRecap(fields PatientInfo, cat Catalog, slot *Slot) string {
	doc := cat.doctorByID(fields.DoctorID)
	return fmt.Sprintf(
		"Here's what I have:\n- Name: %s\n- Phone: %s\n- Reason: %s\n- Doctor: %s\n- Time: %s at %s\nShall I book it? (yes/no)",
		fields.Name, fields.Phone, fields.Symptoms, doctorDisplayName(doc),
		slot.StartTime.Format("Mon 2006-01-02"), slot.StartTime.Format("15:04"))
}

func emptyUtteranceReply(step Step, fields PatientInfo, cat Catalog) string {
	switch step {
	case StepGreeting:
		return "Hello! Say hi whenever you're ready to book an appointment."
	case StepCollectName:
		return "I didn't catch that. Please tell me your full name."
	case StepCollectPhone:
		return "I didn't catch that. What phone number can we reach you on?"
	case StepCollectSymptoms:
		return "I didn't catch that. Could you describe your symptoms?"
	case StepCollectDoctor:
		return "I didn't catch that. Which doctor would you like?\n" + formatDoctorList(cat)
	case StepCollectSlot:
		return "I didn't catch that. Which slot works for you?"
	case StepConfirm:
		return "Please reply yes to confirm the booking, or no to pick a different doctor or time."
	default:
		return "I didn't catch that."
	}
}
