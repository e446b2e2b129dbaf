package chrome

// instrumentJS wires the renderer form. It moves the marker class to the
// submit control clicked last, reports input and submit events through the
// binding, and checks for the renderer's submitAction hook and MathJax.
const instrumentJS = `(formId, marker, binding, rev) => {
  const report = (kind, form) => window[binding](JSON.stringify({kind, rev, form: form || ""}));
  const f = document.getElementById(formId);
  if (f) {
    f.addEventListener('click', (e) => {
      const t = e.target.closest('input[type=submit], button');
      if (!t || !f.contains(t)) return;
      f.querySelectorAll('.' + marker).forEach((n) => n.classList.remove(marker));
      t.classList.add(marker);
    }, true);
    f.addEventListener('input', () => report('input', formId));
    f.addEventListener('submit', (e) => {
      e.preventDefault();
      report('submit', formId);
    });
  }
  const mj = window.MathJax;
  const typeset = !!(mj && mj.startup && mj.startup.promise);
  if (typeset) mj.startup.promise.then(() => report('typeset'));
  return JSON.stringify({prepare: typeof window.submitAction === 'function', typeset});
}`

const heightJS = `() => document.body ? document.body.scrollHeight : 0`

const actionJS = `(id) => {
  const f = document.getElementById(id);
  if (!f || f.tagName !== 'FORM') return null;
  return f.getAttribute('action') || '';
}`

// entriesJS mirrors FormData iteration; file inputs contribute their file name.
const entriesJS = `(id) => {
  const f = document.getElementById(id);
  if (!f) return '[]';
  return JSON.stringify(Array.from(new FormData(f)).map(([name, value]) =>
    ({name, value: typeof value === 'string' ? value : value.name})));
}`

const activatedJS = `(id, marker) => {
  const f = document.getElementById(id);
  const t = f && f.querySelector('.' + marker);
  if (!t) return '';
  return JSON.stringify({name: t.name || '', value: t.value || ''});
}`

const prepareJS = `() => { if (typeof window.submitAction === 'function') window.submitAction(); }`
