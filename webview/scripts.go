package webview

// Functions evaluated inside the Pushbullet page. Each one is called with
// JSON arguments and returns a JSON value. Hooks remember themselves in
// window.__pushrelayHooks so a reload of this process never wraps twice.

const jsReady = `() => !!window.pb && navigator.onLine`

const jsAccountActive = `() => !!(window.pb && pb.account && pb.account.active)`

const jsSetDebug = `(debug) => { pb.DEBUG = debug; return true; }`

const jsHasError = `() => !!(window.pb && pb.error)`

const jsHookError = `(binding) => {
	const hooks = window.__pushrelayHooks = window.__pushrelayHooks || {};
	if (hooks.error) return false;
	pb.error = new Proxy(pb.error, {
		set(target, property, value) {
			if (property === 'title' && typeof value === 'string') {
				window[binding](value);
			}
			target[property] = value;
			return true;
		}
	});
	hooks.error = true;
	return true;
}`

const jsHasCollection = `(name) => !!(window.pb && pb.api && pb.api[name])`

// jsEntry builds the payload sent to Go for one collection write.
const jsEntry = `(name, key, value) => {
	const api = pb.api[name];
	const listed = (api.all || []).some((item) => item && value && item.iden === value.iden);
	const target = value && (name === 'texts'
		? (value.data && value.data.target_device_iden)
		: value.target_device_iden);
	const devices = (pb.api.devices && pb.api.devices.objs) || {};
	const device = target ? devices[target] : undefined;
	return {
		key: String(key),
		value: value,
		listed: listed,
		target: target || '',
		model: (device && device.model) || ''
	};
}`

const jsHookCollection = `(name, binding) => {
	const hooks = window.__pushrelayHooks = window.__pushrelayHooks || {};
	const api = pb.api[name];
	const items = Object.values(api.objs || {});
	if (hooks[name]) return { hooked: true, items: items };
	const build = ` + jsEntry + `;
	let proxied;
	try {
		proxied = new Proxy(api.objs, {
			set(objs, key, value) {
				window[binding](build(name, key, value));
				objs[key] = value;
				return true;
			}
		});
		api.objs = proxied;
	} catch (e) {
		return { hooked: false, items: items };
	}
	if (api.objs !== proxied) return { hooked: false, items: items };
	hooks[name] = true;
	return { hooked: true, items: items };
}`

const jsCollectionKeys = `(name) => Object.keys((pb.api[name] && pb.api[name].objs) || {})`

const jsCollectionEntry = `(name, key) => {
	const objs = (pb.api[name] && pb.api[name].objs) || {};
	if (!(key in objs)) return null;
	const build = ` + jsEntry + `;
	return build(name, key, objs[key]);
}`

const jsHasSocket = `() => !!(window.pb && pb.ws && pb.ws.socket)`

const jsHookSocket = `(binding) => {
	const hooks = window.__pushrelayHooks = window.__pushrelayHooks || {};
	if (hooks.socket) return false;
	pb.ws.socket.addEventListener('message', (ev) => { window[binding](String(ev.data)); });
	hooks.socket = true;
	return true;
}`

const jsListenConnectivity = `(binding) => {
	const hooks = window.__pushrelayHooks = window.__pushrelayHooks || {};
	if (hooks.connectivity) return false;
	window.addEventListener('online', () => { window[binding](true); });
	window.addEventListener('offline', () => { window[binding](false); });
	hooks.connectivity = true;
	return true;
}`

const jsDevices = `() => {
	const out = {};
	const objs = (window.pb && pb.api && pb.api.devices && pb.api.devices.objs) || {};
	for (const iden of Object.keys(objs)) {
		if (objs[iden] && objs[iden].model) out[iden] = objs[iden].model;
	}
	return out;
}`

const jsRecentItems = `() => ({
	pushes: (pb.api.pushes && pb.api.pushes.all) || [],
	texts: (pb.api.texts && pb.api.texts.all) || []
})`

const jsHasAccount = `() => !!(window.pb && pb.api && pb.api.account)`

const jsEnhance = `() => {
	if (pb.api.account.preferences) pb.api.account.preferences.setup_done = true;
	if (pb.sidebar && pb.sidebar.update) pb.sidebar.update();
	if (window.onecup && window.onecup.goto) window.onecup.goto('/#settings');
	return true;
}`

const jsE2EEnabled = `() => !!(window.pb && pb.e2e && pb.e2e.enabled)`

const jsE2EDecrypt = `(ciphertext) => pb.e2e.decrypt(ciphertext)`

const jsDispatchHost = `(name, value) => {
	window.dispatchEvent(new CustomEvent('pushrelay:' + name, { detail: value }));
	return true;
}`
