package dialog

// User-facing texts. The bot speaks pt-BR; keys and code stay in English.

const MenuText = `🏖️ *Arena Beach Tennis* — Olá! Sou o assistente da arena.

Escolha uma opção:
1️⃣ Unidades e horários
2️⃣ Planos e preços
3️⃣ Dúvidas frequentes
4️⃣ Agendar aula experimental
5️⃣ Falar com um atendente

Responda com o número da opção.`

const UnitsText = `📍 *Nossas unidades*

*Copacabana* — Av. Atlântica, 1702
Seg a Sex: 6h às 22h | Sáb: 8h às 14h

*Barra da Tijuca* — Av. do Pepê, 900
Seg a Sex: 6h às 22h | Sáb: 8h às 16h

Digite 0 para voltar ao menu.`

const PricesText = `💰 *Planos e preços*

• 1x por semana — R$ 240/mês
• 2x por semana — R$ 360/mês
• 3x por semana — R$ 450/mês
• Aula avulsa — R$ 80

Aula experimental é *gratuita*! Digite 4 no menu para agendar.

Digite 0 para voltar ao menu.`

const FAQText = `❓ *Dúvidas frequentes*

*Preciso levar raquete?* Não, emprestamos todo o material.
*A partir de qual idade?* Turmas a partir de 10 anos.
*Tem estacionamento?* Sim, nas duas unidades.
*Posso remarcar uma aula?* Sim, com 24h de antecedência.

Digite 0 para voltar ao menu.`

const (
	BookingNamePrompt    = "🎾 Vamos agendar sua aula experimental! Qual é o seu nome?"
	BookingUnitPrompt    = "Em qual unidade você prefere?\n1️⃣ Copacabana\n2️⃣ Barra da Tijuca"
	BookingSlotPrompt    = "Qual horário fica melhor?\n1️⃣ Manhã (7h às 10h)\n2️⃣ Tarde (15h às 18h)\n3️⃣ Noite (18h às 21h)"
	BookingConfirmedText = "✅ Aula experimental agendada! Nossa equipe vai confirmar o dia exato em breve. Até lá! 🏖️"
	BookingCancelledText = "Sem problemas, agendamento cancelado. Voltando ao menu."

	HandoffNoticeText = "👤 Certo! Um atendente vai continuar a conversa por aqui. Aguarde um instante."
	ResumedText       = "🤖 Assistente reativado! Voltando ao menu."

	InvalidOptionText = "Não entendi 🤔 Responda com o número de uma das opções."
	InvalidNameText   = "Pode me dizer seu nome? (pelo menos 2 letras)"
)

// BookingConfirmPrompt renders the booking summary for confirmation.
func BookingConfirmPrompt(name, unit, slot string) string {
	return "Confirmando sua aula experimental:\n\n" +
		"👤 " + name + "\n📍 " + unit + "\n🕐 " + slot + "\n\n" +
		"1️⃣ Confirmar\n2️⃣ Cancelar"
}

// Unit and slot labels, indexed by menu choice.
var (
	unitLabels = map[string]string{
		"1": "Copacabana",
		"2": "Barra da Tijuca",
	}
	slotLabels = map[string]string{
		"1": "Manhã (7h às 10h)",
		"2": "Tarde (15h às 18h)",
		"3": "Noite (18h às 21h)",
	}
)
