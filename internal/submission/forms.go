package submission

import (
	"strconv"

	"edustatus/internal/apperr"
	"edustatus/internal/auth"
)

// NoDuesForm is the payload of a No Dues certificate request.
type NoDuesForm struct {
	RollNo     string `json:"rollNo" validate:"required,rollno"`
	Department string `json:"department" validate:"required"`
	Year       int    `json:"year" validate:"min=1,max=4"`
	Semester   int    `json:"semester" validate:"min=1,max=8"`
	Reason     string `json:"reason" validate:"required,min=10"`
}

// Validate checks the form as filed by the given session.
func (f NoDuesForm) Validate(by auth.Session) error { return validateFor(f, f.RollNo, by) }

// Details flattens the form into the map stored on the submission.
func (f NoDuesForm) Details() map[string]string {
	return map[string]string{
		"rollNo":     f.RollNo,
		"department": f.Department,
		"year":       strconv.Itoa(f.Year),
		"semester":   strconv.Itoa(f.Semester),
		"reason":     f.Reason,
	}
}

// BonafideForm is the payload of a Bonafide certificate request.
type BonafideForm struct {
	RollNo  string `json:"rollNo" validate:"required,rollno"`
	Purpose string `json:"purpose" validate:"required,min=10"`
}

func (f BonafideForm) Validate(by auth.Session) error { return validateFor(f, f.RollNo, by) }

func (f BonafideForm) Details() map[string]string {
	return map[string]string{
		"rollNo":  f.RollNo,
		"purpose": f.Purpose,
	}
}

// validateFor runs the field rules on form, then requires students to file under their
// own roll number. The administrator may file for anyone.
func validateFor(form any, rollNo string, by auth.Session) error {
	if err := auth.ValidateStruct(form); err != nil {
		return err
	}
	if !by.IsAdmin() && rollNo != by.RollNo {
		return &apperr.ValidationError{Fields: []apperr.FieldError{
			{Field: "rollNo", Message: "must be your own roll number"},
		}}
	}
	return nil
}
