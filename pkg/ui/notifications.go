package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

const appName = "bhascraper"

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name="+appName, title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode(%q)) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode(%q)) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier(%q).Show($toast)
	`, title, message, appName)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier prints run outcomes and mirrors them to the desktop when a
// sender is available
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks a sender for the current platform
func NewNotifier() *Notifier {
	var sender NotificationSender

	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	case "windows":
		sender = &WindowsNotificationSender{}
	}

	return &Notifier{sender: sender}
}

// NewNotifierWithSender uses sender, which may be nil for console only
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendNotification prints an informational notice
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError prints a failure notice
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess prints a success notice
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// Desktop notifications are best effort
	_ = n.sender.Send(title, message)
}
