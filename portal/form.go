package portal

import "github.com/use-agent/wlanlogin/models"

// formScript fills the srun login form and clicks its submit button.
// A confirmation dialog left over from a previous session is dismissed
// first. The domain field is optional on single-ISP deployments.
const formScript = `	var flag = function (m) { window[p.flag] = { message: m }; };
	flag(p.pending);
	var confirm = document.querySelector("div.control > button.btn-confirm");
	if (confirm) {
		confirm.click();
	}
	var field = function (sel) {
		var el = document.querySelector(sel);
		if (!el) {
			throw new Error("login form field " + sel + " not found");
		}
		return el;
	};
	field("#username").value = p.username;
	field("#password").value = p.password;
	var domain = document.querySelector("#domain");
	if (domain) {
		domain.value = p.domain;
	}
	field("#login-account").click();
	flag(p.ok);`

// Form drives portals whose page exposes a plain login form.
type Form struct {
	detector
}

func (*Form) Name() string { return "form" }

func (f *Form) BuildLoginScript(creds models.Credentials) (string, error) {
	return invoke(formScript, f.params(creds))
}
