package outreach

import (
	"sort"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
)

// Unit is one outbound email. Every contact in it shares the recipient,
// the send event and the scheduled time.
type Unit struct {
	Email    string
	Contacts []model.OutreachContact
}

// Batch groups contacts by normalized email. Units keep the order in which
// their first contact appears, and contacts keep their input order.
func Batch(contacts []model.OutreachContact) []Unit {
	var units []Unit
	index := make(map[string]int)
	for _, c := range contacts {
		email := contact.Normalize(c.Email)
		i, ok := index[email]
		if !ok {
			i = len(units)
			index[email] = i
			units = append(units, Unit{Email: email})
		}
		units[i].Contacts = append(units[i].Contacts, c)
	}
	return units
}

// byThread groups sent contacts by the send event that started their thread.
func byThread(contacts []model.OutreachContact) []Unit {
	var units []Unit
	index := make(map[string]int)
	for _, c := range contacts {
		key := c.SendToken
		if key == "" {
			key = "contact:" + contact.Normalize(c.Email)
		}
		i, ok := index[key]
		if !ok {
			i = len(units)
			index[key] = i
			units = append(units, Unit{Email: contact.Normalize(c.Email)})
		}
		units[i].Contacts = append(units[i].Contacts, c)
	}
	return units
}

// IDs returns the contact IDs in ascending order.
func (u Unit) IDs() []int64 {
	ids := make([]int64, 0, len(u.Contacts))
	for _, c := range u.Contacts {
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Scheduled returns the earliest scheduled time among the unit's contacts,
// or nil when none has been planned yet.
func (u Unit) Scheduled() *time.Time {
	var at *time.Time
	for _, c := range u.Contacts {
		if c.ScheduledAt != nil && (at == nil || c.ScheduledAt.Before(*at)) {
			at = c.ScheduledAt
		}
	}
	return at
}
