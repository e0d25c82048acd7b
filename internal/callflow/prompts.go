package callflow

import "github.com/MrWong99/vocepta/pkg/types"

// prompts holds the spoken line for every non-silent state in both
// languages. INIT is silent (the machine is still being set up when the
// call sits there).
var prompts = map[State]map[types.Language]string{
	StateGreet: {
		types.LanguageEnglish: "Thank you for calling! How can I help you today?",
		types.LanguageSpanish: "¡Gracias por llamar! ¿Cómo puedo ayudarle hoy?",
	},
	StateLanguageSelect: {
		types.LanguageEnglish: "For English, press one or say English.",
		types.LanguageSpanish: "Para español, presione dos o diga español.",
	},
	StateClassifyCustomerType: {
		types.LanguageEnglish: "Are you a new customer, or do you already have an account with us?",
		types.LanguageSpanish: "¿Es usted un cliente nuevo, o ya tiene una cuenta con nosotros?",
	},
	StateIntentDiscovery: {
		types.LanguageEnglish: "What can I help you with today?",
		types.LanguageSpanish: "¿En qué puedo ayudarle hoy?",
	},
	StateInfoCollection: {
		types.LanguageEnglish: "May I have your name and the best number to reach you?",
		types.LanguageSpanish: "¿Me puede dar su nombre y el mejor número para localizarle?",
	},
	StateConfirmation: {
		types.LanguageEnglish: "Let me confirm the details I have so far.",
		types.LanguageSpanish: "Permítame confirmar los detalles que tengo hasta ahora.",
	},
	StateCreateCallbackTask: {
		types.LanguageEnglish: "One moment while I set up your callback.",
		types.LanguageSpanish: "Un momento mientras preparo su devolución de llamada.",
	},
	StateTransferOrWrapup: {
		types.LanguageEnglish: "Please hold while I connect you with someone who can help.",
		types.LanguageSpanish: "Por favor espere mientras le conecto con alguien que pueda ayudarle.",
	},
	StateEnd: {
		types.LanguageEnglish: "Thank you for calling. Goodbye!",
		types.LanguageSpanish: "Gracias por llamar. ¡Adiós!",
	},
	StateError: {
		types.LanguageEnglish: "I'm sorry, something went wrong on my end. Let me find someone to help you.",
		types.LanguageSpanish: "Lo siento, algo salió mal de mi parte. Permítame buscar a alguien que le ayude.",
	},
	StateTimeout: {
		types.LanguageEnglish: "I haven't heard from you, so someone from our office will call you back shortly. Goodbye!",
		types.LanguageSpanish: "No le he escuchado, así que alguien de nuestra oficina le devolverá la llamada pronto. ¡Adiós!",
	},
}

// Prompt returns the spoken line for state s in lang. An unknown language
// falls back to English. ok is false only for silent states (INIT) and
// unknown states.
func Prompt(s State, lang types.Language) (string, bool) {
	byLang, ok := prompts[s]
	if !ok {
		return "", false
	}
	if p, ok := byLang[lang]; ok {
		return p, true
	}
	return byLang[types.LanguageEnglish], true
}
