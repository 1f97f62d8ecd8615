package portal

import "github.com/use-agent/wlanlogin/models"

// portalAPIScript calls login on the portal's client object. Both
// callback options and a returned thenable are honoured; the flag stays
// pending if the client reports neither.
const portalAPIScript = `	var flag = function (m) { window[p.flag] = { message: m }; };
	flag(p.pending);
	var client = window[p.object];
	if (!client || typeof client.login !== "function") {
		throw new Error("portal client " + p.object + ".login not found");
	}
	var settled = false;
	var done = function () {
		if (!settled) {
			settled = true;
			flag(p.ok);
		}
	};
	var fail = function (e) {
		if (settled) {
			return;
		}
		settled = true;
		var msg = e && (e.error_msg || e.message || e.error);
		flag(msg ? String(msg) : "login failed");
	};
	var result = client.login({
		username: p.username,
		password: p.password,
		domain: p.domain,
		success: done,
		error: fail
	}, done, fail);
	if (result && typeof result.then === "function") {
		result.then(done, fail);
	}`

// PortalAPI drives portals whose page script exposes a client object
// with a login method.
type PortalAPI struct {
	detector
}

func (*PortalAPI) Name() string { return "portal-api" }

func (v *PortalAPI) BuildLoginScript(creds models.Credentials) (string, error) {
	p := v.params(creds)
	p.Object = v.settings.PortalObject
	return invoke(portalAPIScript, p)
}
