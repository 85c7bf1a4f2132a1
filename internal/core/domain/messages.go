package domain

// User-facing messages. The clinic staff UI is in Uzbek.
const (
	MsgSessionTimeout  = "Sessiyani tekshirish cho'zildi. Qayta kirib ko'ring."
	MsgProfileTimeout  = "Profil yuklanishi cho'zildi. Qayta urinib ko'ring."
	MsgRoleNotAssigned = "Admin rolni tayinlamagan"
	MsgContactAdmin    = "Profilingizda rol belgilanmagan. Administrator bilan bog'laning."
	MsgUnknownError    = "Noma'lum xatolik"

	MsgProfileFetchPrefix     = "Profil: "
	MsgProfileProvisionPrefix = "Profil yaratish: "

	MsgLoginInvalid     = "Email yoki parol noto'g'ri"
	MsgLoginUnconfirmed = "Email tasdiqlanmagan. Pochtangizni tekshiring."
	MsgLoginNetwork     = "Tarmoq xatosi. Internet aloqangizni tekshiring."
	MsgLoginInactive    = "Hisobingiz faol emas. Administrator bilan bog'laning."

	MsgRecoveryPromoted = "Foydalanuvchi admin qilindi"
	MsgRecoveryCreated  = "Yangi admin yaratildi"
)
