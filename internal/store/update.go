package store

// Assignment pairs a field with a value.
type Assignment struct {
	Field string
	Value any
}

// Update accumulates typed field changes. Each backend renders it into its
// native syntax: an UpdateExpression for DynamoDB, a document patch for SQL.
type Update struct {
	sets    []Assignment
	adds    []Assignment
	removes []string
	atLeast []Assignment

	returning any
}

func NewUpdate() *Update {
	return &Update{}
}

// Set replaces a field. A nil value removes it.
func (u *Update) Set(field string, value any) *Update {
	if value == nil {
		return u.Remove(field)
	}
	u.sets = append(u.sets, Assignment{Field: field, Value: value})
	return u
}

// Add atomically adds delta to a numeric field, treating a missing field as 0.
// Repeated adds to one field are summed, since DynamoDB rejects an update
// expression that names the same path twice.
func (u *Update) Add(field string, delta int64) *Update {
	for i, a := range u.adds {
		if a.Field == field {
			u.adds[i].Value = a.Value.(int64) + delta
			return u
		}
	}
	u.adds = append(u.adds, Assignment{Field: field, Value: delta})
	return u
}

// Delta returns the summed delta added to field.
func (u *Update) Delta(field string) (int64, bool) {
	for _, a := range u.adds {
		if a.Field == field {
			return a.Value.(int64), true
		}
	}
	return 0, false
}

func (u *Update) Remove(field string) *Update {
	u.removes = append(u.removes, field)
	return u
}

// RequireAtLeast makes the update conditional on field >= min before it applies.
func (u *Update) RequireAtLeast(field string, min int64) *Update {
	u.atLeast = append(u.atLeast, Assignment{Field: field, Value: min})
	return u
}

// Returning decodes the item as written by the update into out, a pointer to
// a struct.
func (u *Update) Returning(out any) *Update {
	u.returning = out
	return u
}

func (u *Update) IsEmpty() bool {
	return u == nil || (len(u.sets) == 0 && len(u.adds) == 0 && len(u.removes) == 0)
}

// Fields lists every field the update writes, in order.
func (u *Update) Fields() []string {
	var fields []string
	for _, s := range u.sets {
		fields = append(fields, s.Field)
	}
	for _, a := range u.adds {
		fields = append(fields, a.Field)
	}
	return append(fields, u.removes...)
}

func (u *Update) writes(field string) bool {
	for _, f := range u.Fields() {
		if f == field {
			return true
		}
	}
	return false
}
