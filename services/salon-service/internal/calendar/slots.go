package calendar

// GenerateSlots returns "HH:MM" slot starts from open, stepping by intervalMinutes,
// strictly before close. A slot that would only partly fit is still emitted as long
// as its start is before close.
func GenerateSlots(open, close Clock, intervalMinutes int) []string {
	slots := make([]string, 0)
	if intervalMinutes <= 0 || open >= close {
		return slots
	}
	for t := open; t < close; t += Clock(intervalMinutes) {
		slots = append(slots, t.String())
	}
	return slots
}
