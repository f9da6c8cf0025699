// Package catalog maps e-MECeF numeric error codes to human-readable causes.
package catalog

import (
	"fmt"
	"sort"
)

const fallbackMessage = "Erreur inconnue retournée par e-MECeF (code %d)"

var messages = map[int]string{
	1:  "Le nombre maximum de factures en attente de finalisation est atteint",
	3:  "Le type de facture est invalide",
	4:  "La référence de la facture originale est manquante ou invalide",
	5:  "Le code AIB est invalide",
	6:  "La facture doit contenir entre 1 et 100 articles",
	7:  "Le nom d'un article est manquant",
	8:  "Le prix d'un article est invalide",
	9:  "La quantité d'un article est invalide",
	10: "Le groupe de taxation d'un article est invalide",
	11: "La taxe spécifique n'est autorisée que pour les groupes A, E et F",
	12: "Le nom de l'opérateur est manquant",
	13: "Le type de paiement est invalide",
	14: "Le montant d'un paiement est invalide",
	15: "La somme des paiements ne correspond pas au total de la facture",
	16: "L'IFU du client est invalide",
	17: "La facture originale référencée est introuvable",
	18: "La facture originale référencée n'est pas confirmée",
	19: "Le montant de la facture d'avoir dépasse celui de la facture originale",
	20: "La facture est introuvable ou déjà finalisée",
	21: "L'IFU du vendeur ne correspond pas au jeton d'accès",
	22: "Le jeton d'accès est invalide ou expiré",
	23: "L'e-MCF du contribuable est inactif",
	99: "Erreur interne du serveur e-MECeF",
}

// Lookup returns the message registered for code.
func Lookup(code int) (string, bool) {
	msg, ok := messages[code]
	return msg, ok
}

// Message returns the message for code, falling back to a generic message
// for unknown codes.
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return fmt.Sprintf(fallbackMessage, code)
}

// Codes lists every known code in ascending order.
func Codes() []int {
	codes := make([]int, 0, len(messages))
	for code := range messages {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
