package browser

// stealthScript runs before any page script in every context we create.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined
});

Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US']
});

Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5]
});

window.chrome = { runtime: {} };

window.addEventListener('resize', function() {
    window.dispatchEvent(new Event('responsive-resize'));
});

const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications' ?
        Promise.resolve({ state: Notification.permission }) :
        originalQuery(parameters)
);

(function () {
    const originalAttachShadow = Element.prototype.attachShadow;
    Element.prototype.attachShadow = function attachShadow(options) {
        return originalAttachShadow.call(this, { ...options, mode: "open" });
    };
})();
`
