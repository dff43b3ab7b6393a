package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/fio"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

const czechDate = "2. 1. 2006"

var enrollmentStateLabels = map[models.EnrollmentState]string{
	models.EnrollmentWaiting:    "čeká na schválení",
	models.EnrollmentApproved:   "schválena",
	models.EnrollmentSubstitute: "náhradník",
	models.EnrollmentRejected:   "odmítnuta",
}

func occurrenceLabel(occ models.Occurrence, loc *time.Location) string {
	if occ.DatetimeStart != nil && occ.DatetimeEnd != nil {
		return fmt.Sprintf("%s %s–%s", occ.Start(loc).Format(czechDate),
			occ.Start(loc).Format("15:04"), occ.End(loc).Format("15:04"))
	}
	return occ.Date.Format(czechDate)
}

func passwordResetMessage(to, token string, ttl time.Duration) mailer.Message {
	return mailer.Message{
		To:      []string{to},
		Subject: "Obnovení hesla",
		Body: fmt.Sprintf("Dobrý den,\n\nobdrželi jsme žádost o obnovení hesla k vašemu účtu.\n"+
			"Kód pro nastavení nového hesla: %s\n\nKód platí %d hodin. Pokud jste o obnovení nežádali, zprávu ignorujte.\n",
			token, int(ttl.Hours())),
	}
}

func enrollmentStateMessage(to []string, person models.Person, event models.Event, state models.EnrollmentState) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Změna stavu přihlášky: %s", event.Name),
		Body: fmt.Sprintf("Dobrý den,\n\npřihláška osoby %s na %s %s je nyní ve stavu: %s.\n",
			person.FullName(), models.CategoryLabels[event.Category], event.Name, enrollmentStateLabels[state]),
	}
}

func excuseMessage(to []string, person models.Person, event models.Event, occ models.Occurrence, loc *time.Location, coach bool) mailer.Message {
	role := "účastník"
	if coach {
		role = "trenér"
	}
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Omluva z %s %s", event.Name, occ.Date.Format(czechDate)),
		Body: fmt.Sprintf("Dobrý den,\n\n%s %s se omluvil(a) z termínu %s akce %s.\n",
			role, person.FullName(), occurrenceLabel(occ, loc), event.Name),
	}
}

func excuseCancelledMessage(to []string, person models.Person, event models.Event, occ models.Occurrence, loc *time.Location) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Zrušení omluvy: %s", event.Name),
		Body: fmt.Sprintf("Dobrý den,\n\nomluva osoby %s z termínu %s akce %s byla zrušena.\n",
			person.FullName(), occurrenceLabel(occ, loc), event.Name),
	}
}

func coachOfferMessage(to []string, event models.Event, occ models.Occurrence, position models.Position, loc *time.Location) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Uvolněné místo trenéra: %s", event.Name),
		Body: fmt.Sprintf("Dobrý den,\n\nna termínu %s akce %s (%s) se uvolnila pozice %s.\n"+
			"Pokud máte zájem, přihlaste se na tento termín jako jednorázový trenér.\n",
			occurrenceLabel(occ, loc), event.Name, event.Location, position.Name),
	}
}

func absenceAlertMessage(to []string, participant models.Person, event models.Event, absences int) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Opakovaná absence: %s", participant.FullName()),
		Body: fmt.Sprintf("Dobrý den,\n\n%s chybí na tréninku %s již %d× za sebou.\n",
			participant.FullName(), event.Name, absences),
	}
}

func featureAssignedMessage(to []string, person models.Person, feature models.Feature, a models.FeatureAssignment) mailer.Message {
	texts := models.FeatureTypeTexts[feature.FeatureType]
	var b strings.Builder
	fmt.Fprintf(&b, "Dobrý den,\n\nosobě %s bylo přiřazeno %s: %s (od %s",
		person.FullName(), texts.Assigned, feature.Name, a.DateAssigned.Format(czechDate))
	if a.DateExpire != nil {
		fmt.Fprintf(&b, " do %s", a.DateExpire.Format(czechDate))
	}
	b.WriteString(").\n")
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Nové %s: %s", texts.Singular, feature.Name),
		Body:    b.String(),
	}
}

func featureExpiryMessage(to []string, d models.FeatureAssignmentDetail) mailer.Message {
	texts := models.FeatureTypeTexts[d.FeatureType]
	expire := ""
	if d.DateExpire != nil {
		expire = d.DateExpire.Format(czechDate)
	}
	return mailer.Message{
		To:      to,
		Subject: texts.ExpirySubject,
		Body: fmt.Sprintf("Dobrý den,\n\nplatnost položky %s (%s) osoby %s %s končí dne %s.\n",
			d.FeatureName, texts.Singular, d.FirstName, d.LastName, expire),
	}
}

func unclosedReminderMessage(to []string, occurrences []models.OccurrenceDetail, loc *time.Location) mailer.Message {
	var b strings.Builder
	b.WriteString("Dobrý den,\n\nnásledující termíny dosud nebyly uzavřeny:\n\n")
	for _, o := range occurrences {
		fmt.Fprintf(&b, "- %s, %s\n", o.EventName, occurrenceLabel(o.Occurrence, loc))
	}
	b.WriteString("\nProsíme o vyplnění docházky a uzavření termínů.\n")
	return mailer.Message{
		To:      to,
		Subject: "Neuzavřené termíny",
		Body:    b.String(),
	}
}

func duplicateSymbolMessage(to []string, t models.Transaction, entry fio.Entry) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Duplicitní platba s VS %s", entry.VariableSymbol),
		Body: fmt.Sprintf("Dobrý den,\n\nna účet přišla platba %d (%.2f Kč, %s) s variabilním symbolem %s,\n"+
			"transakce %d je však již spárována s jinou platbou. Platbu je nutné vyřešit ručně.\n",
			entry.ID, entry.Amount, entry.Date.Format(czechDate), entry.VariableSymbol, t.ID),
	}
}

func amountMismatchMessage(to []string, t models.Transaction, entry fio.Entry) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Nesouhlasí částka platby s VS %s", entry.VariableSymbol),
		Body: fmt.Sprintf("Dobrý den,\n\nplatba %d s variabilním symbolem %s má částku %.2f Kč,\n"+
			"transakce %d (%s) však očekává %d Kč. Platba nebyla spárována.\n",
			entry.ID, entry.VariableSymbol, entry.Amount, t.ID, t.Reason, t.AbsAmount()),
	}
}
