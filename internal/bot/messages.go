package bot

const (
	msgWelcome = "Hello! I am the HR assistant. I will interview you for one of our open vacancies.\n" +
		"To begin, please send your email address."
	msgInvalidEmail       = "That does not look like an email address. Please send a valid email."
	msgAskResume          = "Thank you! Now send your resume as a PDF, DOCX, ODT, RTF or TXT file, or paste it as a message (at least 200 characters)."
	msgResumeUnreadable   = "I could not read that resume. Please send a PDF, DOCX, ODT, RTF or TXT file up to 10 MB, or paste the text."
	msgResumeFound        = "Welcome back! I found your resume on file."
	msgResumeSaved        = "Your resume is saved."
	msgChooseVacancy      = "Choose the vacancy you are interested in:"
	msgNoVacancies        = "There are no open vacancies right now. Send /start later to check again."
	msgUnknownVacancy     = "Please pick one of the vacancies on the keyboard."
	msgAlreadyInterviewed = "You have already completed the interview for this vacancy. Please choose another one."
	msgVacancyUnavailable = "This vacancy is not ready for interviews yet. Please choose another one."
	msgInterviewOver      = "Your interview is complete, thank you! Send /start to apply for another vacancy."
	msgRegisterFirst      = "Let's finish the registration first."
	msgSorry              = "Sorry, something went wrong on our side. Please send your message again in a minute."
)
