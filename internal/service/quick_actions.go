package service

import (
	"strings"

	"health-chat/internal/domain"
)

const medicalDisclaimer = "This information is general guidance and not a substitute for advice from a qualified healthcare professional."

type quickActionEntry struct {
	label   string
	content string
}

var quickActionOrder = []string{"symptoms", "medications", "wellness", "emergency"}

var quickActionCatalog = map[string]quickActionEntry{
	"symptoms": {
		label: "Check symptoms",
		content: "To help understand your symptoms, tell me:\n" +
			"- What you are feeling and where\n" +
			"- When it started and whether it is getting better or worse\n" +
			"- How severe it is on a scale from 1 to 10\n" +
			"- Anything that makes it better or worse\n" +
			"- Other symptoms such as fever, nausea or dizziness\n\n" +
			medicalDisclaimer,
	},
	"medications": {
		label: "Medication info",
		content: "I can share general information about medications:\n" +
			"- Common uses and typical dosing guidance\n" +
			"- Frequent side effects to watch for\n" +
			"- Known interactions with other drugs, food or alcohol\n\n" +
			"Always follow the instructions from your doctor or pharmacist and check the label before taking any medicine.\n\n" +
			medicalDisclaimer,
	},
	"wellness": {
		label: "Wellness tips",
		content: "Everyday habits that support your health:\n" +
			"- Sleep 7 to 9 hours on a regular schedule\n" +
			"- Drink water throughout the day\n" +
			"- Aim for 150 minutes of moderate activity per week\n" +
			"- Eat plenty of vegetables, fruit and whole grains\n" +
			"- Take short breaks to manage stress\n\n" +
			medicalDisclaimer,
	},
	"emergency": {
		label: "Emergency guidance",
		content: "If this is a medical emergency, call 911 or your local emergency number immediately.\n\n" +
			"Seek emergency care right away for:\n" +
			"- Chest pain or pressure, or trouble breathing\n" +
			"- Sudden weakness, numbness, facial drooping or slurred speech\n" +
			"- Severe bleeding, a serious injury or loss of consciousness\n" +
			"- Thoughts of harming yourself or others\n\n" +
			"Do not wait for an online response in an emergency.",
	},
}

// QuickActions devuelve el catalogo de atajos en orden de presentacion.
func QuickActions() []domain.QuickAction {
	out := make([]domain.QuickAction, 0, len(quickActionOrder))
	for _, tag := range quickActionOrder {
		out = append(out, domain.QuickAction{Action: tag, Label: quickActionCatalog[tag].label})
	}
	return out
}

// normalizeQuickActionTag devuelve el tag canonico y si existe en el catalogo.
func normalizeQuickActionTag(tag string) (string, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	_, ok := quickActionCatalog[tag]
	return tag, ok
}

// cannedQuickActionText devuelve el texto predefinido para un tag canonico.
func cannedQuickActionText(tag string) (string, bool) {
	entry, ok := quickActionCatalog[tag]
	return entry.content, ok
}
