package functions

import (
	"fmt"
	"sort"
	"strings"
)

const (
	ProfileSalesHelpdesk    = "sales_helpdesk"
	ProfileDental           = "dental"
	ProfileDentalEscalation = "dental_escalation"
	ProfileDentalCRM        = "dental_crm"
)

const (
	defaultGreeting     = "Hello! I'm Daela, your dental assistant at Knolabs Dental Agency. Can I know if you are the patient or you're representing the patient?"
	defaultHelpPhrase   = "help me"
	defaultReEngagement = "Human Agent interaction completed. Politely ask if it was helpful and if user is happy to proceed with the in-person appointment."
	escalationNotice    = "Human assistance is coming. Please wait while I'm trying to connect you. I'll be here if you need me, just say my name."
)

const dentalPersona = "Your name is Daela, a dental assistant for Knolabs Dental Agency. You are soft, caring with a bit of humour in you when responding. " +
	"You offer appointment booking for dental care services, including urgent attention, routine check-ups, and long-term treatments available at prices according to needs which you cant say immediately. An onsite appointment is required. " +
	"You can also analyze dental images to provide preliminary assessments, but always emphasize the need for professional in-person examination. " +
	"Provide friendly, professional assistance and emphasize the importance of regular dental care. " +
	"The users asking you questions could be of different age, so ask questions one by one. " +
	"Any query outside of the dental service, politely reject stating your purpose. " +
	"When starting conversation try and get the patient's name and email address in sequence if not already provided. Encourage user to type email address to avoid any mistakes and reconfirm it after user provides it. "

const dentalCRMPersona = "Save the user's information in the CRM and always update user's problem or issue as and when the information is available based on your analysis. " +
	"If an urgent assistance is needed, you must first check available slots and only if the slot is within next 15 min then you can try to call human assistance immediately. " +
	"If a slot is not available immediately, send out regular appointment booking link and explain users why you can't help immediately. " +
	"Notify users his GDPR rights as and when necessary and also inform user of extra charge may apply for urgent appointment. "

const dentalClosing = "If the care needed is not urgent, you can ask for image or ask user to show the dental area to use your vision capabilities to analyse the issue and offer assistance. " +
	"Always keep your conversation engaging, short and try to offer the in-person appointment."

const salesPersona = "Your name is Daela. You are a funny, witty sales assistant bot working in Knolabs AI Agency (operates in the UK but serves globally). The Agency provides AI Automation Services to different clients. Your interface with users will be voice and vision. " +
	"Respond with short and concise answers. Avoid using unpronounceable punctuation or emojis. Your purpose is to offer a free appointment booking, especially when the user or lead is interested in AI/Automation services."

// Profile is one agent variant: persona, function subset and handoff wording.
type Profile struct {
	Name      string
	Persona   string
	Greeting  string
	Functions []string
	// Escalates is false for profiles that never dial a human. Those
	// answer an escalation with UrgentAdvice instead.
	Escalates              bool
	UrgentAdvice           string
	EscalationAnnouncement string
	HelpPhrase             string
	ReEngagementPrompt     string
}

var profiles = map[string]Profile{
	ProfileSalesHelpdesk: {
		Name:      ProfileSalesHelpdesk,
		Persona:   salesPersona,
		Greeting:  "Hello! I'm Daela from Knolabs AI Agency. How can I help you today?",
		Functions: []string{FnAnalyzeDentalImage, FnBookAppointment, FnCheckAppointmentStatus},
	},
	ProfileDental: {
		Name:         ProfileDental,
		Persona:      dentalPersona + dentalClosing,
		Greeting:     defaultGreeting,
		Functions:    []string{FnAnalyzeDentalImage, FnBookAppointment, FnAssessDentalUrgency},
		UrgentAdvice: "Based on your description, this seems to be an urgent dental issue. I recommend seeking immediate dental care.",
	},
	ProfileDentalEscalation: {
		Name:               ProfileDentalEscalation,
		Persona:            dentalPersona + dentalClosing,
		Greeting:           defaultGreeting,
		Functions:          []string{FnAnalyzeDentalImage, FnBookAppointment, FnAssessDentalUrgency},
		Escalates:          true,
		HelpPhrase:         defaultHelpPhrase,
		ReEngagementPrompt: defaultReEngagement,
	},
	ProfileDentalCRM: {
		Name:    ProfileDentalCRM,
		Persona: dentalPersona + dentalCRMPersona + dentalClosing,
		Functions: []string{
			FnAnalyzeDentalImage, FnCreateContactInCRM, FnBookAppointment, FnUpdateContactInfo,
			FnFindAppointmentSlots, FnBookEmergencyAppointment, FnAssessDentalUrgency,
		},
		Greeting:               defaultGreeting,
		Escalates:              true,
		EscalationAnnouncement: "The issue needs urgent attention. " + escalationNotice,
		HelpPhrase:             defaultHelpPhrase,
		ReEngagementPrompt:     defaultReEngagement,
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

func ProfileNames() []string {
	out := make([]string, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildRegistry assembles the profile's function table over crm.
func BuildRegistry(p Profile, crm CRM, opts DentalOptions) (*Registry, *Dental, error) {
	dental := NewDental(crm, opts)
	all := dental.Definitions()
	defs := make([]Definition, 0, len(p.Functions))
	for _, name := range p.Functions {
		def, ok := all[name]
		if !ok {
			return nil, nil, fmt.Errorf("profile %s: unknown function %s", p.Name, name)
		}
		defs = append(defs, def)
	}
	return NewRegistry(defs...), dental, nil
}
