package functions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/redact"
)

const (
	FnBookAppointment          = "book_appointment"
	FnCheckAppointmentStatus   = "check_appointment_status"
	FnAssessDentalUrgency      = "assess_dental_urgency"
	FnAnalyzeDentalImage       = "analyze_dental_image"
	FnCreateContactInCRM       = "create_contact_in_crm"
	FnUpdateContactInfo        = "update_contact_info"
	FnFindAppointmentSlots     = "find_appointment_slots"
	FnBookEmergencyAppointment = "book_emergency_appointment"
)

const (
	msgInvalidEmail        = "The email address seems incorrect. Please provide a valid one."
	msgBookingLinkSent     = "Dental appointment booking link sent to %s. Please check your email."
	msgBookingFailed       = "There was an error booking your dental appointment. Please try again later."
	msgBooked              = "You have successfully booked a dental appointment."
	msgNotBooked           = "You haven't booked a dental appointment yet. Would you like assistance in scheduling one?"
	msgStatusFailed        = "Error checking the dental appointment status."
	msgNotUrgent           = "Your dental issue doesn't appear to be immediately urgent, but it's still important to schedule an appointment soon for a proper evaluation."
	msgContactCreated      = "Customer data is saved with Customer Reference ID: %s. Please save this reference for later."
	msgContactFailed       = "There was an error creating your contact in our system. Please try again later."
	msgContactUpdated      = "I've now reported your problem to our system. Please note you've a right to erasure all your data kept with us securely as part of your rights ensured by GDPR. "
	msgUpdateFailed        = "There was an error updating your information in our system. Please try again later."
	msgFirstSlot           = "The first available slot is %s"
	msgNoSlot              = "No Slot Found"
	msgEmergencyBookFailed = "There was an error booking your emergency appointment. Please try again later."
	msgMissingContactID    = "I need your customer reference ID before I can update your details."
	msgMissingSlot         = "Please pick one of the available slots first."
)

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

var urgentKeywords = []string{"severe pain", "swelling", "bleeding", "trauma", "knocked out", "broken"}

// ValidEmail applies the anchored local@domain.tld check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsUrgent reports whether symptoms mention any urgent keyword.
func IsUrgent(symptoms string) bool {
	s := strings.ToLower(symptoms)
	for _, kw := range urgentKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// CRM is the subset of the CRM client the dental functions use.
type CRM interface {
	SendBookingLink(ctx context.Context, email, name string) error
	HasBookedTag(ctx context.Context, email string) (bool, error)
	CreateContact(ctx context.Context, email, firstName string) (string, error)
	UpdateContactIssue(ctx context.Context, contactID, issue string) error
	FreeSlots(ctx context.Context, start, end time.Time) ([]string, error)
	BookSlot(ctx context.Context, slot, email string) error
}

type DentalOptions struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Dental implements the clinic's callable functions on top of a CRM.
type Dental struct {
	crm  CRM
	opts DentalOptions
	log  *slog.Logger
}

func NewDental(crm CRM, opts DentalOptions) *Dental {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dental{
		crm:  crm,
		opts: opts,
		log:  logging.NewComponentLogger(opts.Logger, "functions"),
	}
}

// Definitions returns the full dental table keyed by function name.
func (d *Dental) Definitions() map[string]Definition {
	defs := []Definition{
		{
			Name:        FnBookAppointment,
			Description: "Called when a user wants to book an appointment. This function sends a booking link to the provided email address and name.",
			Parameters: []Parameter{
				{Name: "email", Description: "The email address to send the booking link to"},
				{Name: "name", Description: "The name of the person booking the appointment", Optional: true},
			},
			Handler: d.bookAppointment,
		},
		{
			Name:        FnCheckAppointmentStatus,
			Description: "Check whether the user with this email has already booked a dental appointment.",
			Parameters: []Parameter{
				{Name: "email", Description: "The email address used for the booking"},
			},
			Handler: func(ctx context.Context, args Args) Result {
				email := args.String("email")
				if !ValidEmail(email) {
					return Text(msgInvalidEmail)
				}
				return Text(d.CheckStatus(ctx, email))
			},
		},
		{
			Name:        FnAssessDentalUrgency,
			Description: "Assess the urgency of a dental issue and determine if a human agent should be called.",
			Parameters: []Parameter{
				{Name: "symptoms", Description: "Description of the dental symptoms or issues"},
			},
			Handler: d.assessUrgency,
		},
		{
			Name:        FnAnalyzeDentalImage,
			Description: "Called when asked to evaluate dental issues using vision capabilities, for example an image, video or the webcam.",
			Parameters: []Parameter{
				{Name: "user_msg", Description: "The user message that triggered this function"},
			},
			Handler: func(ctx context.Context, args Args) Result {
				return Result{Outcome: OutcomeAnalyzeImage, Text: args.String("user_msg")}
			},
		},
		{
			Name:        FnCreateContactInCRM,
			Description: "Called to save a new patient's name and email in the CRM. Returns the customer reference id.",
			Parameters: []Parameter{
				{Name: "email", Description: "The email address of the patient"},
				{Name: "name", Description: "The first name of the patient"},
			},
			Handler: d.createContact,
		},
		{
			Name:        FnUpdateContactInfo,
			Description: "Called to update dental issue details for the users. contact_id from create contact step response is required.",
			Parameters: []Parameter{
				{Name: "contact_id", Description: "The Contact Id Reference For The User"},
				{Name: "issue_description", Description: "Description of the dental issue or analysis result"},
			},
			Handler: d.updateContact,
		},
		{
			Name:        FnFindAppointmentSlots,
			Description: "Called to find available appointment slots. Must be called to check urgent slots otherwise can be called if user queries it.",
			Parameters: []Parameter{
				{Name: "urgency", Description: "The urgency of the appointment - emergency or non_emergency. default is non_emergency.", Enum: []string{"emergency", "non_emergency"}, Optional: true},
			},
			Handler: d.findSlots,
		},
		{
			Name:        FnBookEmergencyAppointment,
			Description: "Called to book an emergency appointment.",
			Parameters: []Parameter{
				{Name: "slot", Description: "The selected appointment slot. An Example slot format expected: 2024-10-17T03:30:00+01:00"},
				{Name: "email", Description: "The email address of the patient to book the urgent appointment."},
			},
			Handler: d.bookEmergency,
		},
	}
	out := make(map[string]Definition, len(defs))
	for _, def := range defs {
		out[def.Name] = def
	}
	return out
}

func (d *Dental) bookAppointment(ctx context.Context, args Args) Result {
	email := args.String("email")
	if !ValidEmail(email) {
		return Text(msgInvalidEmail)
	}
	res := Text(fmt.Sprintf(msgBookingLinkSent, email))
	if err := d.crm.SendBookingLink(ctx, email, args.String("name")); err != nil {
		d.log.Error("booking_link_failed",
			slog.String("email", redact.Email(email)),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		res = Text(msgBookingFailed)
	}
	res.FollowUpEmail = email
	return res
}

// CheckStatus looks up the booking tag for email. It is also run by the
// delayed follow-up after a booking link was sent.
func (d *Dental) CheckStatus(ctx context.Context, email string) string {
	booked, err := d.crm.HasBookedTag(ctx, email)
	if err != nil {
		d.log.Error("appointment_status_failed",
			slog.String("email", redact.Email(email)),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return msgStatusFailed
	}
	if booked {
		return msgBooked
	}
	return msgNotBooked
}

func (d *Dental) assessUrgency(ctx context.Context, args Args) Result {
	if !IsUrgent(args.String("symptoms")) {
		return Text(msgNotUrgent)
	}
	return Escalate()
}

func (d *Dental) createContact(ctx context.Context, args Args) Result {
	email := args.String("email")
	if !ValidEmail(email) {
		return Text(msgInvalidEmail)
	}
	id, err := d.crm.CreateContact(ctx, email, args.String("name"))
	if err != nil {
		d.log.Error("create_contact_failed",
			slog.String("email", redact.Email(email)),
			slog.String("error", err.Error()))
		return Text(msgContactFailed)
	}
	return Text(fmt.Sprintf(msgContactCreated, id))
}

func (d *Dental) updateContact(ctx context.Context, args Args) Result {
	if args.String("contact_id") == "" {
		return Text(msgMissingContactID)
	}
	if err := d.crm.UpdateContactIssue(ctx, args.String("contact_id"), args.String("issue_description")); err != nil {
		d.log.Error("update_contact_failed",
			slog.String("contact_id", args.String("contact_id")),
			slog.String("error", err.Error()))
		return Text(msgUpdateFailed)
	}
	return Text(msgContactUpdated)
}

// SlotWindow returns the search window for an urgency level: the next 24
// hours for emergencies, otherwise days 3 to 10 from now.
func SlotWindow(now time.Time, urgency string) (time.Time, time.Time) {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "emergency", "urgent":
		return now, now.Add(24 * time.Hour)
	default:
		start := now.Add(3 * 24 * time.Hour)
		return start, start.Add(7 * 24 * time.Hour)
	}
}

func (d *Dental) findSlots(ctx context.Context, args Args) Result {
	start, end := SlotWindow(d.opts.Now(), args.String("urgency"))
	slots, err := d.crm.FreeSlots(ctx, start, end)
	if err != nil {
		d.log.Error("find_slots_failed", slog.String("error", err.Error()))
		return Failed("slot lookup failed")
	}
	if len(slots) == 0 {
		return Text(msgNoSlot)
	}
	return Text(fmt.Sprintf(msgFirstSlot, slots[0]))
}

// bookEmergency escalates on every successful booking. Slot timing is not
// checked here.
func (d *Dental) bookEmergency(ctx context.Context, args Args) Result {
	email := args.String("email")
	if args.String("slot") == "" {
		return Text(msgMissingSlot)
	}
	if !ValidEmail(email) {
		return Text(msgInvalidEmail)
	}
	if err := d.crm.BookSlot(ctx, args.String("slot"), email); err != nil {
		d.log.Error("emergency_booking_failed",
			slog.String("email", redact.Email(email)),
			slog.String("error", err.Error()))
		return Text(msgEmergencyBookFailed)
	}
	return Escalate()
}
