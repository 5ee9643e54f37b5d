package service

import "fmt"

func welcomeEmailTemplate(name, appURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi %s,

Your account is ready. Share your robots and their URDFs at:
%s

If you have questions, reach out to our support team.

Best,
The %s Team`, name, appURL, appName)

	return subject, body
}

func accountDeletedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s account has been deleted", appName)
	body := fmt.Sprintf(`Hi %s,

Your account has been permanently deleted from %s.

Your API keys and linked GitHub and Google sign-ins have been removed. Listings you published stay online until a moderator removes them.

If you didn't request this deletion, please contact our support team immediately, though we won't be able to recover your account.

Best,
The %s Team`, name, appName, appName)

	return subject, body
}
