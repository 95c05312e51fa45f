package autoreply

import (
	"fmt"
	"strings"
	"time"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/settings"
)

const defaultPersona = "أنت مساعد ذكي لعيادة طبية. أجب عن أسئلة المرضى بلطف واحترافية وباختصار."

const bookingProtocol = `قواعد حجز المواعيد (التزم بها حرفياً):
1. تأكد من الوقت المطلوب مع المريض قبل الحجز.
2. اسأل إن كان الموعد للمرسل نفسه أم لشخص آخر، واحصل على اسم المريض الصحيح.
3. عندما يتوفر لديك التاريخ والوقت واسم المريض، أضف في نهاية ردك سطراً واحداً فقط بهذا الشكل بالضبط:
[[APPOINTMENT: YYYY-MM-DD | HH:MM | اسم المريض | ملاحظات]]
4. هذا السطر هو تأكيد الحجز بحد ذاته، لا تطلب تأكيداً إضافياً بعده ولا تكرره.
5. لا تحجز أي موعد خارج الأوقات المتاحة المذكورة أدناه.`

// buildSystemInstruction assembles the persona, clinic facts, knowledge base,
// live availability, and the booking protocol into one instruction block.
func buildSystemInstruction(values map[string]string, today, tomorrow []time.Time, now time.Time) string {
	var sb strings.Builder

	persona := strings.TrimSpace(values[settings.KeyAIInstruction])
	if persona == "" {
		persona = defaultPersona
	}
	sb.WriteString(persona)
	sb.WriteString("\n\n")

	sb.WriteString("معلومات العيادة:\n")
	writeFact(&sb, "الاسم", values[settings.KeyClinicName])
	writeFact(&sb, "العنوان", values[settings.KeyClinicAddress])
	writeFact(&sb, "الهاتف", values[settings.KeyClinicPhone])
	writeFact(&sb, "أوقات الدوام", values[settings.KeyWorkingHours])
	sb.WriteString(fmt.Sprintf("- تاريخ اليوم: %s\n", now.Format("2006-01-02")))

	if services := strings.TrimSpace(values[settings.KeyServices]); services != "" {
		sb.WriteString("\nالخدمات المتوفرة:\n")
		sb.WriteString(services)
		sb.WriteString("\n")
	}
	if kb := strings.TrimSpace(values[settings.KeyKnowledgeBase]); kb != "" {
		sb.WriteString("\nمعلومات إضافية:\n")
		sb.WriteString(kb)
		sb.WriteString("\n")
	}

	sb.WriteString("\nالمواعيد المتاحة:\n")
	writeSlots(&sb, "اليوم "+now.Format("2006-01-02"), today)
	writeSlots(&sb, "غداً "+now.AddDate(0, 0, 1).Format("2006-01-02"), tomorrow)

	sb.WriteString("\n")
	sb.WriteString(bookingProtocol)
	return sb.String()
}

func writeFact(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("- %s: %s\n", label, value))
}

func writeSlots(sb *strings.Builder, label string, slots []time.Time) {
	if len(slots) == 0 {
		sb.WriteString(fmt.Sprintf("- %s: لا توجد مواعيد متاحة\n", label))
		return
	}
	hours := make([]string, 0, len(slots))
	for _, s := range slots {
		hours = append(hours, s.Format("15:04"))
	}
	sb.WriteString(fmt.Sprintf("- %s: %s\n", label, strings.Join(hours, "، ")))
}
